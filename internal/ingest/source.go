package ingest

import (
	"context"
	"time"

	"github.com/h33h/TelegramBackup/internal/domain"
)

// RemoteButton is one cell of an inline keyboard as reported by the
// Telegram adapter, before it is assigned a Message/entity key.
type RemoteButton struct {
	Row, Col int
	Text     string
	URL      string
}

// RemoteMessage is the normalized shape the ingestion pipeline consumes,
// independent of the gotd/td wire types the Telegram adapter decodes
// them from.
type RemoteMessage struct {
	ID        int64
	Timestamp time.Time
	Text      string

	SenderID    int64
	ViewCount   int
	ReplyTo     int64
	IsPinned    bool
	IsVoice     bool
	ForwardFrom string

	// ServiceKind is non-empty when this is a service message rather than
	// a user message: join, leave, title_change, call, create, or other
	// for any remaining service action; Media is never set alongside it.
	ServiceKind string

	Media *domain.RemoteMediaDescriptor

	Reactions []ReactionSpec
	Buttons   []RemoteButton
	Links     []string
	Reply     *ReplySpec
}

// ReactionSpec is one emoji tally on a message, prior to being attached
// to a (message_id, entity_id) key.
type ReactionSpec struct {
	Emoji string
	Count int
}

// ReplySpec is the quoted-message snapshot of a reply, prior to being
// attached to a (message_id, entity_id) key.
type ReplySpec struct {
	QuotedMessageID int64
	QuotedText      string
	QuotedSenderID  int64
}

// Source iterates one entity's messages newest-first, invoking fn for
// each. Returning a non-nil error from fn stops iteration and propagates.
// limit <= 0 means no limit.
type Source interface {
	IterateMessages(ctx context.Context, entityID int64, limit int, fn func(RemoteMessage) error) error
}
