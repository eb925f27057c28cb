package domain

import (
	"fmt"
	"regexp"
)

var unsafeEntityChars = regexp.MustCompile(`[^A-Za-z0-9._ -]`)

// SanitizeEntityDir builds the filesystem-safe per-entity directory name:
// "{id}_{name}" with every character outside [A-Za-z0-9._ -] replaced by
// '_'.
func SanitizeEntityDir(id int64, name string) string {
	safeName := unsafeEntityChars.ReplaceAllString(name, "_")
	return fmt.Sprintf("%d_%s", id, safeName)
}
