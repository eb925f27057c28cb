package telegram

import (
	"strconv"
	"time"
	"unicode/utf16"

	"github.com/gotd/td/tg"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/ingest"
)

// translate converts one gotd/td message into the normalized
// ingest.RemoteMessage shape. ok is false for message kinds this engine
// intentionally ignores (e.g. empty placeholders).
func translate(m tg.MessageClass) (ingest.RemoteMessage, bool) {
	switch msg := m.(type) {
	case *tg.Message:
		return translateMessage(msg), true
	case *tg.MessageService:
		return translateServiceMessage(msg), true
	default:
		return ingest.RemoteMessage{}, false
	}
}

func translateMessage(msg *tg.Message) ingest.RemoteMessage {
	rm := ingest.RemoteMessage{
		ID:        int64(msg.ID),
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
		Text:      msg.Message,
		ViewCount: msg.Views,
		IsPinned:  msg.Pinned,
	}

	if from, ok := msg.GetFromID(); ok {
		if peerUser, ok := from.(*tg.PeerUser); ok {
			rm.SenderID = peerUser.UserID
		}
	}

	if fwd, ok := msg.GetFwdFrom(); ok {
		if fwd.FromName != "" {
			rm.ForwardFrom = fwd.FromName
		}
	}

	if reply, ok := msg.GetReplyTo(); ok {
		if rh, ok := reply.(*tg.MessageReplyHeader); ok {
			if replyToMsgID, ok := rh.GetReplyToMsgID(); ok {
				rm.ReplyTo = int64(replyToMsgID)
				rm.Reply = &ingest.ReplySpec{QuotedMessageID: int64(replyToMsgID)}
				if quote, ok := rh.GetQuoteText(); ok {
					rm.Reply.QuotedText = quote
				}
			}
		}
	}

	if media, ok := msg.GetMedia(); ok {
		rm.Media = translateMedia(media)
		if rm.Media != nil && rm.Media.Document != nil {
			rm.IsVoice = rm.Media.Document.IsVoice
		}
	}

	if reactions, ok := msg.GetReactions(); ok {
		for _, r := range reactions.Results {
			if emoji, ok := r.Reaction.(*tg.ReactionEmoji); ok {
				rm.Reactions = append(rm.Reactions, ingest.ReactionSpec{Emoji: emoji.Emoticon, Count: r.Count})
			}
		}
	}

	if markup, ok := msg.GetReplyMarkup(); ok {
		if rows, ok := markup.(*tg.ReplyInlineMarkup); ok {
			for rowIdx, row := range rows.Rows {
				for colIdx, btn := range row.Buttons {
					rm.Buttons = append(rm.Buttons, buttonFrom(rowIdx, colIdx, btn))
				}
			}
		}
	}

	for _, e := range msg.Entities {
		if url, ok := urlFromEntity(e, msg.Message); ok {
			rm.Links = append(rm.Links, url)
		}
	}

	return rm
}

func translateServiceMessage(msg *tg.MessageService) ingest.RemoteMessage {
	rm := ingest.RemoteMessage{
		ID:        int64(msg.ID),
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
	}

	switch action := msg.Action.(type) {
	case *tg.MessageActionChatAddUser:
		rm.ServiceKind = "join"
	case *tg.MessageActionChatDeleteUser:
		rm.ServiceKind = "leave"
	case *tg.MessageActionChatEditTitle:
		rm.ServiceKind = "title_change"
		rm.Text = action.Title
	case *tg.MessageActionChatCreate:
		rm.ServiceKind = "create"
		rm.Text = action.Title
	case *tg.MessageActionPhoneCall:
		rm.ServiceKind = "call"
	default:
		rm.ServiceKind = "other"
	}

	return rm
}

func translateMedia(media tg.MessageMediaClass) *domain.RemoteMediaDescriptor {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		largest := largestPhotoSize(photo.Sizes)
		return &domain.RemoteMediaDescriptor{Photo: &domain.RemotePhoto{
			FileID: photoFileID(photo.ID), RemoteID: photo.ID, AccessHash: photo.AccessHash,
			FileReference: photo.FileReference, ThumbSize: largest.thumbType,
			Size: largest.size, Width: largest.w, Height: largest.h,
		}}

	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return nil
		}
		rd := &domain.RemoteDocument{
			FileID: documentFileID(doc.ID), RemoteID: doc.ID, AccessHash: doc.AccessHash,
			FileReference: doc.FileReference,
			MimeType:      doc.MimeType, Size: doc.Size,
		}
		for _, attr := range doc.Attributes {
			switch a := attr.(type) {
			case *tg.DocumentAttributeFilename:
				rd.Filename = a.FileName
			case *tg.DocumentAttributeVideo:
				rd.IsVideo = true
				rd.Duration = int(a.Duration)
				rd.Width, rd.Height = a.W, a.H
			case *tg.DocumentAttributeAudio:
				rd.Duration = int(a.Duration)
				rd.IsVoice = a.Voice
			case *tg.DocumentAttributeAnimated:
				rd.IsAnimated = true
			}
		}
		return &domain.RemoteMediaDescriptor{Document: rd}

	case *tg.MessageMediaWebPage:
		wp, ok := m.Webpage.(*tg.WebPage)
		if !ok {
			return nil
		}
		return &domain.RemoteMediaDescriptor{WebPage: &domain.RemoteWebPage{
			URL: wp.URL, Title: wp.Title, Description: wp.Description, SiteName: wp.SiteName,
		}}

	default:
		return nil
	}
}

type dimensions struct {
	size      int64
	w, h      int
	thumbType string
}

func largestPhotoSize(sizes []tg.PhotoSizeClass) dimensions {
	var best dimensions
	for _, s := range sizes {
		switch sz := s.(type) {
		case *tg.PhotoSize:
			if int64(sz.Size) > best.size {
				best = dimensions{size: int64(sz.Size), w: sz.W, h: sz.H, thumbType: sz.Type}
			}
		case *tg.PhotoCachedSize:
			area := int64(sz.W) * int64(sz.H)
			if area > best.size {
				best = dimensions{size: int64(len(sz.Bytes)), w: sz.W, h: sz.H, thumbType: sz.Type}
			}
		}
	}
	return best
}

// photoFileID and documentFileID build a stable local identifier from the
// remote numeric id; Telegram's own base64 file_id encoding additionally
// folds in dc/type information this engine doesn't need to reproduce, it
// only needs a value that's stable across runs for the same blob.
func photoFileID(id int64) string    { return "p" + strconv.FormatInt(id, 10) }
func documentFileID(id int64) string { return "d" + strconv.FormatInt(id, 10) }

func buttonFrom(row, col int, btn tg.KeyboardButtonClass) ingest.RemoteButton {
	rb := ingest.RemoteButton{Row: row, Col: col}
	switch b := btn.(type) {
	case *tg.KeyboardButtonURL:
		rb.Text = b.Text
		rb.URL = b.URL
	case *tg.KeyboardButton:
		rb.Text = b.Text
	default:
	}
	return rb
}

func urlFromEntity(e tg.MessageEntityClass, text string) (string, bool) {
	switch ent := e.(type) {
	case *tg.MessageEntityURL:
		return sliceUTF16(text, ent.Offset, ent.Length), true
	case *tg.MessageEntityTextURL:
		return ent.URL, true
	default:
		return "", false
	}
}

// sliceUTF16 extracts the substring Telegram's UTF-16 offset/length entity
// addressing refers to. Telegram entity offsets are always UTF-16 code
// unit counts, not byte or rune counts, so the string must round-trip
// through utf16.Encode/Decode rather than being sliced as runes.
func sliceUTF16(s string, offset, length int) string {
	units := utf16.Encode([]rune(s))
	if offset < 0 || offset > len(units) {
		return ""
	}
	end := offset + length
	if end > len(units) {
		end = len(units)
	}
	return string(utf16.Decode(units[offset:end]))
}
