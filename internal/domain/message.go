// Package domain holds the core types shared by the store, dedup resolver,
// download executor, and ingestion pipeline.
package domain

import "time"

// Message mirrors one row of the messages table. Identity is (ID, EntityID).
type Message struct {
	ID        int64
	EntityID  int64
	Timestamp time.Time
	Text      string

	MediaType    string // "", "photo", "document", "voice", "video", "sticker", "service"
	ServiceKind  string // join|leave|title_change|call|create|other, only set when MediaType == "service"
	ForwardFrom  string
	SenderID     int64
	ViewCount    int
	ReplyTo      int64 // 0 if none
	IsPinned     bool
	IsService    bool
	IsVoice      bool
	ExtractedAt  time.Time
	WebPreviewID int64 // 0 if none

	// MediaRef is nullable: 0 means no media row is linked yet.
	MediaRef int64
}

// Reaction is a child row of Message: one emoji tally.
type Reaction struct {
	MessageID int64
	EntityID  int64
	Emoji     string
	Count     int
}

// Button is one cell of an inline keyboard attached to a message.
//
// Kept in its own table rather than sharing a key with in-text Links: a
// shared (message_id, entity_id, 0, 0) key collides between the first
// button and the first in-text link and silently drops one.
type Button struct {
	MessageID int64
	EntityID  int64
	Row       int
	Col       int
	Text      string
	URL       string
}

// Link is one in-text hyperlink extracted from a message's entities.
type Link struct {
	MessageID int64
	EntityID  int64
	Position  int
	URL       string
}

// WebPreview is a snapshot of a message's link preview.
type WebPreview struct {
	ID          int64
	URL         string
	Title       string
	Description string
	SiteName    string
}
