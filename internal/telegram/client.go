// Package telegram wraps gotd/td's MTProto client to enumerate
// entities, iterate messages
// newest-first, and transfer media blobs, translating gotd/td's wire
// types into the domain/ingest shapes the rest of the engine consumes.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/download"
	"github.com/h33h/TelegramBackup/internal/ingest"
)

// Client adapts a connected *telegram.Client to the ingest.Source and
// download.Fetcher interfaces.
type Client struct {
	api *tg.Client
	dl  *downloader.Downloader

	// peers caches the input peer for each entity seen by ListEntities;
	// history paging needs the peer's access hash and concrete type, not
	// just its numeric id.
	peers map[int64]tg.InputPeerClass
}

// New wraps an already-authenticated gotd/td client.
func New(client *telegram.Client) *Client {
	return &Client{api: client.API(), dl: downloader.NewDownloader(), peers: make(map[int64]tg.InputPeerClass)}
}

// Entity is a dialog (user, chat, or channel) this account can back up.
type Entity struct {
	ID     int64
	Name   string
	Access int64
}

// ListEntities enumerates the chats, channels and users of the first page
// (up to 100) of the account's dialogs: chats and channels first, then
// users, not in dialog-activity order.
func (c *Client) ListEntities(ctx context.Context) ([]Entity, error) {
	dialogs, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if err != nil {
		return nil, fmt.Errorf("list dialogs: %w", err)
	}

	var out []Entity
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		out = append(out, c.entitiesFromChats(d.Chats, d.Users)...)
	case *tg.MessagesDialogsSlice:
		out = append(out, c.entitiesFromChats(d.Chats, d.Users)...)
	}
	return out, nil
}

func (c *Client) entitiesFromChats(chats []tg.ChatClass, users []tg.UserClass) []Entity {
	var out []Entity
	for _, ch := range chats {
		switch v := ch.(type) {
		case *tg.Chat:
			out = append(out, Entity{ID: v.ID, Name: v.Title})
			c.peers[v.ID] = &tg.InputPeerChat{ChatID: v.ID}
		case *tg.Channel:
			out = append(out, Entity{ID: v.ID, Name: v.Title, Access: v.AccessHash})
			c.peers[v.ID] = &tg.InputPeerChannel{ChannelID: v.ID, AccessHash: v.AccessHash}
		}
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			out = append(out, Entity{ID: user.ID, Name: user.Username, Access: user.AccessHash})
			c.peers[user.ID] = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
		}
	}
	return out
}

// IterateMessages implements ingest.Source by paging tg.MessagesGetHistory
// newest-first.
func (c *Client) IterateMessages(ctx context.Context, entityID int64, limit int, fn func(ingest.RemoteMessage) error) error {
	peer, ok := c.peers[entityID]
	if !ok {
		// Entity never came through ListEntities; channel access is the
		// only kind that works without an access hash here.
		peer = &tg.InputPeerChannel{ChannelID: entityID}
	}

	const pageSize = 100
	offsetID := 0
	seen := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req := &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    pageSize,
		}
		resp, err := c.api.MessagesGetHistory(ctx, req)
		if err != nil {
			return classifyTransferError(fmt.Errorf("get history: %w", err))
		}

		msgs := messagesFrom(resp)
		if len(msgs) == 0 {
			return nil
		}

		for _, m := range msgs {
			rm, ok := translate(m)
			if !ok {
				continue
			}
			if err := fn(rm); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}

		offsetID = messageID(msgs[len(msgs)-1])
		if offsetID == 0 {
			return nil
		}
	}
}

func messagesFrom(resp tg.MessagesMessagesClass) []tg.MessageClass {
	switch r := resp.(type) {
	case *tg.MessagesMessages:
		return r.Messages
	case *tg.MessagesMessagesSlice:
		return r.Messages
	case *tg.MessagesChannelMessages:
		return r.Messages
	default:
		return nil
	}
}

func messageID(m tg.MessageClass) int {
	switch v := m.(type) {
	case *tg.Message:
		return v.ID
	case *tg.MessageService:
		return v.ID
	default:
		return 0
	}
}

// Fetch implements download.Fetcher by streaming the blob identified by
// item.Meta's remote location into dest.
func (c *Client) Fetch(ctx context.Context, item download.Item, dest string, onProgress func(delta int64)) error {
	loc := inputLocationFor(item.Meta)

	f, err := os.Create(dest)
	if err != nil {
		return domain.NewError(domain.KindDiskFull, fmt.Errorf("create destination: %w", err))
	}
	defer f.Close()

	counting := &countingWriter{w: f, onProgress: onProgress}

	_, err = c.dl.Download(c.api, loc).Stream(ctx, counting)
	if err != nil {
		return classifyTransferError(err)
	}
	return nil
}

// inputLocationFor builds the gotd/td location RPC needs to stream a blob,
// branching on whether the metadata came from a photo (thumb-size-keyed
// location) or a document (location without a thumb size, i.e. the full
// file).
func inputLocationFor(meta domain.ExtractedMetadata) tg.InputFileLocationClass {
	if meta.IsPhoto {
		return &tg.InputPhotoFileLocation{
			ID:            meta.RemoteID,
			AccessHash:    meta.AccessHash,
			FileReference: meta.FileReference,
			ThumbSize:     meta.ThumbSize,
		}
	}
	return &tg.InputDocumentFileLocation{
		ID:            meta.RemoteID,
		AccessHash:    meta.AccessHash,
		FileReference: meta.FileReference,
	}
}

type countingWriter struct {
	w          io.Writer
	onProgress func(delta int64)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 && c.onProgress != nil {
		c.onProgress(int64(n))
	}
	return n, err
}

// classifyTransferError maps a gotd/td RPC error into the ErrorKind
// taxonomy. FLOOD_WAIT and SLOWMODE_WAIT carry the server-advised wait
// in seconds; everything else unrecognized is treated as retryable
// network trouble, which the retry policy's backoff still bounds.
func classifyTransferError(err error) error {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return domain.NewWaitError(domain.KindRateLimited, wait, err)
	}
	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Type {
		case "SLOWMODE_WAIT":
			return domain.NewWaitError(domain.KindSlowMode, time.Duration(rpcErr.Argument)*time.Second, err)
		case "CHANNEL_PRIVATE", "CHAT_ADMIN_REQUIRED":
			return domain.NewError(domain.KindAccessDenied, err)
		case "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "SESSION_EXPIRED":
			return domain.NewError(domain.KindAuthFailed, err)
		case "FILE_REFERENCE_EXPIRED":
			return domain.NewError(domain.KindInvalidData, err)
		}
	}
	return domain.NewError(domain.KindNetworkTransient, err)
}
