package store

import (
	"database/sql"
	"fmt"

	"github.com/h33h/TelegramBackup/internal/domain"
)

// ReplyStore persists the quoted-message snapshot attached to a reply.
type ReplyStore struct{ store *Store }

func NewReplyStore(s *Store) *ReplyStore { return &ReplyStore{store: s} }

func (r *ReplyStore) Put(messageID, entityID int64, quotedMessageID int64, quotedText string, quotedSenderID int64) error {
	_, err := r.store.Exec(`
		INSERT INTO replies (message_id, entity_id, quoted_message_id, quoted_text, quoted_sender_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(message_id, entity_id) DO UPDATE SET
			quoted_message_id = excluded.quoted_message_id,
			quoted_text       = excluded.quoted_text,
			quoted_sender_id  = excluded.quoted_sender_id
	`, messageID, entityID, nullInt64(quotedMessageID), nullString(quotedText), nullInt64(quotedSenderID))
	if err != nil {
		return fmt.Errorf("put reply: %w", err)
	}
	return nil
}

// ButtonStore persists inline keyboard buttons. Buttons and in-text
// links live in separate tables; a shared key would collide on
// (message_id, entity_id, 0, 0).
type ButtonStore struct{ store *Store }

func NewButtonStore(s *Store) *ButtonStore { return &ButtonStore{store: s} }

func (b *ButtonStore) Put(btn *domain.Button) error {
	_, err := b.store.Exec(`
		INSERT INTO buttons (message_id, entity_id, row, col, text, url)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, entity_id, row, col) DO UPDATE SET
			text = excluded.text, url = excluded.url
	`, btn.MessageID, btn.EntityID, btn.Row, btn.Col, nullString(btn.Text), nullString(btn.URL))
	if err != nil {
		return fmt.Errorf("put button: %w", err)
	}
	return nil
}

func (b *ButtonStore) GetByMessage(messageID, entityID int64) ([]*domain.Button, error) {
	rows, err := b.store.Query(`
		SELECT message_id, entity_id, row, col, text, url FROM buttons
		WHERE message_id = ? AND entity_id = ? ORDER BY row, col
	`, messageID, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Button
	for rows.Next() {
		var btn domain.Button
		var text, url sql.NullString
		if err := rows.Scan(&btn.MessageID, &btn.EntityID, &btn.Row, &btn.Col, &text, &url); err != nil {
			return nil, err
		}
		btn.Text, btn.URL = text.String, url.String
		out = append(out, &btn)
	}
	return out, rows.Err()
}

// LinkStore persists in-text hyperlinks, kept separate from buttons.
type LinkStore struct{ store *Store }

func NewLinkStore(s *Store) *LinkStore { return &LinkStore{store: s} }

func (l *LinkStore) Put(link *domain.Link) error {
	_, err := l.store.Exec(`
		INSERT INTO links (message_id, entity_id, position, url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, entity_id, position) DO UPDATE SET url = excluded.url
	`, link.MessageID, link.EntityID, link.Position, link.URL)
	if err != nil {
		return fmt.Errorf("put link: %w", err)
	}
	return nil
}

func (l *LinkStore) GetByMessage(messageID, entityID int64) ([]*domain.Link, error) {
	rows, err := l.store.Query(`
		SELECT message_id, entity_id, position, url FROM links
		WHERE message_id = ? AND entity_id = ? ORDER BY position
	`, messageID, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Link
	for rows.Next() {
		var link domain.Link
		if err := rows.Scan(&link.MessageID, &link.EntityID, &link.Position, &link.URL); err != nil {
			return nil, err
		}
		out = append(out, &link)
	}
	return out, rows.Err()
}

// ReactionStore persists per-emoji reaction tallies.
type ReactionStore struct{ store *Store }

func NewReactionStore(s *Store) *ReactionStore { return &ReactionStore{store: s} }

func (r *ReactionStore) Put(reaction *domain.Reaction) error {
	_, err := r.store.Exec(`
		INSERT INTO reactions (message_id, entity_id, emoji, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, entity_id, emoji) DO UPDATE SET count = excluded.count
	`, reaction.MessageID, reaction.EntityID, reaction.Emoji, reaction.Count)
	if err != nil {
		return fmt.Errorf("put reaction: %w", err)
	}
	return nil
}

func (r *ReactionStore) GetByMessage(messageID, entityID int64) ([]*domain.Reaction, error) {
	rows, err := r.store.Query(`
		SELECT message_id, entity_id, emoji, count FROM reactions
		WHERE message_id = ? AND entity_id = ?
	`, messageID, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Reaction
	for rows.Next() {
		var reaction domain.Reaction
		if err := rows.Scan(&reaction.MessageID, &reaction.EntityID, &reaction.Emoji, &reaction.Count); err != nil {
			return nil, err
		}
		out = append(out, &reaction)
	}
	return out, rows.Err()
}

// WebPreviewStore persists link-preview snapshots referenced by
// Message.WebPreviewID.
type WebPreviewStore struct{ store *Store }

func NewWebPreviewStore(s *Store) *WebPreviewStore { return &WebPreviewStore{store: s} }

func (w *WebPreviewStore) Put(preview *domain.WebPreview) (int64, error) {
	res, err := w.store.Exec(`
		INSERT INTO web_previews (url, title, description, site_name) VALUES (?, ?, ?, ?)
	`, preview.URL, nullString(preview.Title), nullString(preview.Description), nullString(preview.SiteName))
	if err != nil {
		return 0, fmt.Errorf("put web preview: %w", err)
	}
	return res.LastInsertId()
}
