package telegram

import "testing"

func TestSliceUTF16ASCII(t *testing.T) {
	s := "visit https://example.com today"
	got := sliceUTF16(s, 6, 19)
	if got != "https://example.com" {
		t.Fatalf("expected URL substring, got %q", got)
	}
}

func TestSliceUTF16SurrogatePair(t *testing.T) {
	// An emoji (U+1F600) is one rune but two UTF-16 code units; Telegram's
	// entity offsets count the latter, so a naive []rune slice would
	// misalign everything after it.
	s := "\U0001F600 hello"
	got := sliceUTF16(s, 3, 5)
	if got != "hello" {
		t.Fatalf("expected 'hello' after the surrogate pair, got %q", got)
	}
}

func TestSliceUTF16OutOfRangeClamps(t *testing.T) {
	s := "short"
	if got := sliceUTF16(s, 2, 100); got != "ort" {
		t.Fatalf("expected clamped suffix 'ort', got %q", got)
	}
	if got := sliceUTF16(s, 999, 5); got != "" {
		t.Fatalf("expected empty string for out-of-range offset, got %q", got)
	}
}

func TestFormatIDDistinguishesPhotoAndDocument(t *testing.T) {
	if photoFileID(42) == documentFileID(42) {
		t.Fatalf("expected photo and document ids for the same numeric id to differ")
	}
	if photoFileID(42) != "p42" {
		t.Fatalf("expected photo file id p42, got %q", photoFileID(42))
	}
	if documentFileID(-7) != "d-7" {
		t.Fatalf("expected negative id to format verbatim, got %q", documentFileID(-7))
	}
}
