package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/h33h/TelegramBackup/internal/domain"
)

// MessageStore persists domain.Message rows.
type MessageStore struct {
	store *Store
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(s *Store) *MessageStore {
	return &MessageStore{store: s}
}

// Put upserts a message. On conflict the nullable fields the caller left
// empty (text, service kind, forward origin, sender, reply target, web
// preview, media_ref) keep their stored values via COALESCE; the other
// columns take the new values.
func (m *MessageStore) Put(msg *domain.Message) error {
	_, err := m.store.Exec(`
		INSERT INTO messages (
			id, entity_id, timestamp, text, media_type, service_kind,
			forward_from, sender_id, view_count, reply_to, is_pinned,
			is_service, is_voice, extracted_at, web_preview_id, media_ref
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, entity_id) DO UPDATE SET
			timestamp      = excluded.timestamp,
			text           = COALESCE(excluded.text, messages.text),
			media_type     = excluded.media_type,
			service_kind   = COALESCE(excluded.service_kind, messages.service_kind),
			forward_from   = COALESCE(excluded.forward_from, messages.forward_from),
			sender_id      = COALESCE(excluded.sender_id, messages.sender_id),
			view_count     = excluded.view_count,
			reply_to       = COALESCE(excluded.reply_to, messages.reply_to),
			is_pinned      = excluded.is_pinned,
			is_service     = excluded.is_service,
			is_voice       = excluded.is_voice,
			web_preview_id = COALESCE(excluded.web_preview_id, messages.web_preview_id),
			media_ref      = COALESCE(excluded.media_ref, messages.media_ref)
	`,
		msg.ID, msg.EntityID, msg.Timestamp.Unix(), nullString(msg.Text), msg.MediaType,
		nullString(msg.ServiceKind), nullString(msg.ForwardFrom), nullInt64(msg.SenderID),
		msg.ViewCount, nullInt64(msg.ReplyTo), boolToInt(msg.IsPinned), boolToInt(msg.IsService),
		boolToInt(msg.IsVoice), msg.ExtractedAt.Unix(), nullInt64(msg.WebPreviewID), nullInt64(msg.MediaRef),
	)
	if err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	return nil
}

// SetMediaRef attaches a resolved Media row to a message, used once the
// Dedup Resolver has settled on a final media_files id.
func (m *MessageStore) SetMediaRef(id, entityID, mediaID int64) error {
	_, err := m.store.Exec(`UPDATE messages SET media_ref = ? WHERE id = ? AND entity_id = ?`, mediaID, id, entityID)
	return err
}

// Get fetches a single message.
func (m *MessageStore) Get(id, entityID int64) (*domain.Message, error) {
	row := m.store.QueryRow(`
		SELECT id, entity_id, timestamp, text, media_type, service_kind, forward_from,
		       sender_id, view_count, reply_to, is_pinned, is_service, is_voice,
		       extracted_at, web_preview_id, media_ref
		FROM messages WHERE id = ? AND entity_id = ?
	`, id, entityID)
	return scanMessage(row)
}

// LatestID returns the newest stored message id for an entity, or 0 when
// the entity has no stored messages.
func (m *MessageStore) LatestID(entityID int64) (int64, error) {
	var id sql.NullInt64
	err := m.store.QueryRow(`SELECT MAX(id) FROM messages WHERE entity_id = ?`, entityID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func scanMessage(row *sql.Row) (*domain.Message, error) {
	var msg domain.Message
	var ts, extractedAt int64
	var text, serviceKind, forwardFrom sql.NullString
	var senderID, replyTo, webPreviewID, mediaRef sql.NullInt64
	var isPinned, isService, isVoice int

	err := row.Scan(
		&msg.ID, &msg.EntityID, &ts, &text, &msg.MediaType, &serviceKind, &forwardFrom,
		&senderID, &msg.ViewCount, &replyTo, &isPinned, &isService, &isVoice,
		&extractedAt, &webPreviewID, &mediaRef,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	msg.Timestamp = unixTime(ts)
	msg.ExtractedAt = unixTime(extractedAt)
	msg.Text = text.String
	msg.ServiceKind = serviceKind.String
	msg.ForwardFrom = forwardFrom.String
	msg.SenderID = senderID.Int64
	msg.ReplyTo = replyTo.Int64
	msg.IsPinned = isPinned != 0
	msg.IsService = isService != 0
	msg.IsVoice = isVoice != 0
	msg.WebPreviewID = webPreviewID.Int64
	msg.MediaRef = mediaRef.Int64

	return &msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
