// Command telegram-archive mirrors a Telegram account's chats into
// per-entity local backups: list / backup / backup-all / login / logout /
// reconcile verbs driving the ingestion pipeline over one account.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
