// Package ingest is the per-entity coordinator loop: it drives the dedup
// resolver and download executor over a message stream and commits
// progress after every media resolution.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/h33h/TelegramBackup/internal/dedup"
	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/download"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
	"github.com/h33h/TelegramBackup/internal/metadata"
	"github.com/h33h/TelegramBackup/internal/progress"
	"github.com/h33h/TelegramBackup/internal/stats"
	"github.com/h33h/TelegramBackup/internal/store"
)

// Config controls batch-flush thresholds, mirroring infra/config.DownloadConfig.
type Config struct {
	BatchSize      int
	BatchSizeBytes int64
	ShowProgress   bool
}

// Pipeline wires the per-entity store, Dedup Resolver, and Download
// Executor together.
type Pipeline struct {
	cfg Config

	messages    *store.MessageStore
	media       *store.MediaStore
	replies     *store.ReplyStore
	buttons     *store.ButtonStore
	links       *store.LinkStore
	reactions   *store.ReactionStore
	webPreviews *store.WebPreviewStore

	resolver  *dedup.Resolver
	executor  *download.Executor
	extractor *metadata.Extractor

	stats *stats.Stats
	log   *logger.Logger
}

// New builds a Pipeline for one entity's already-open store.
func New(
	cfg Config,
	s *store.Store,
	resolver *dedup.Resolver,
	executor *download.Executor,
	extractor *metadata.Extractor,
	st *stats.Stats,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		messages:    store.NewMessageStore(s),
		media:       store.NewMediaStore(s),
		replies:     store.NewReplyStore(s),
		buttons:     store.NewButtonStore(s),
		links:       store.NewLinkStore(s),
		reactions:   store.NewReactionStore(s),
		webPreviews: store.NewWebPreviewStore(s),
		resolver:    resolver,
		executor:    executor,
		extractor:   extractor,
		stats:       st,
		log:         log.Sub("ingest"),
	}
}

// Summary is what ProcessEntity returns for one entity run.
type Summary struct {
	Messages        int
	Downloaded      int
	Skipped         int
	BytesDownloaded int64
	BytesSkipped    int64
	Elapsed         time.Duration
	ErrorsByKind    map[domain.ErrorKind]int
}

// pendingDownload bundles a reserved download.Item with the not-yet-
// persisted message that needs its media_ref once the item resolves.
type pendingDownload struct {
	item    download.Item
	entity  int64
	message domain.Message
	remote  RemoteMessage
}

// ProcessEntity iterates entityID's messages newest-first (up to limit,
// <=0 meaning unbounded), resolving and downloading media as needed.
// downloadMedia=false skips the Download Executor entirely: media
// messages are persisted with media_ref left null.
func (p *Pipeline) ProcessEntity(ctx context.Context, source Source, entityID int64, limit int, downloadMedia bool) (Summary, error) {
	summary := Summary{ErrorsByKind: make(map[domain.ErrorKind]int)}
	started := time.Now()

	var pending []pendingDownload
	var pendingBytes int64

	var ui *progress.UI
	if p.cfg.ShowProgress {
		ui = progress.New(p.cfg.BatchSize)
	}

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := p.flushBatch(ctx, pending, ui, &summary); err != nil {
			return err
		}
		pending = pending[:0]
		pendingBytes = 0
		return nil
	}

	iterErr := source.IterateMessages(ctx, entityID, limit, func(rm RemoteMessage) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg := domain.Message{
			ID: rm.ID, EntityID: entityID, Timestamp: rm.Timestamp, Text: rm.Text,
			ForwardFrom: rm.ForwardFrom, SenderID: rm.SenderID, ViewCount: rm.ViewCount,
			ReplyTo: rm.ReplyTo, IsPinned: rm.IsPinned, IsVoice: rm.IsVoice,
			IsService: rm.ServiceKind != "", ServiceKind: rm.ServiceKind,
			ExtractedAt: time.Now(),
		}

		if rm.Media == nil {
			msg.MediaType = mediaTypeFor(rm)
			if err := p.persistMessage(entityID, msg, rm); err != nil {
				return err
			}
			summary.Messages++
			return nil
		}

		msg.MediaType = discriminatorFor(*rm.Media)

		if rm.Media.WebPage != nil {
			// A link preview is metadata, not a downloadable blob; it
			// never goes through the dedup resolver or the downloader.
			if err := p.persistMessage(entityID, msg, rm); err != nil {
				return err
			}
			summary.Messages++
			return nil
		}

		if !downloadMedia {
			if err := p.persistMessage(entityID, msg, rm); err != nil {
				return err
			}
			summary.Messages++
			return nil
		}

		meta := p.extractor.FromRemote(*rm.Media)
		res, err := p.resolver.Resolve(meta)
		if err != nil {
			return fmt.Errorf("resolve media for message %d: %w", rm.ID, err)
		}

		if !res.NeedDownload {
			msg.MediaRef = res.MediaID
			if err := p.persistMessage(entityID, msg, rm); err != nil {
				return err
			}
			summary.Messages++
			return nil
		}

		pending = append(pending, pendingDownload{
			item: download.Item{
				FileID: meta.FileID, DeclaredSize: meta.Size, Path: res.Path,
				Discriminator: msg.MediaType, Meta: meta,
			},
			entity: entityID, message: msg, remote: rm,
		})
		pendingBytes += meta.Size

		if len(pending) >= p.cfg.BatchSize || (p.cfg.BatchSizeBytes > 0 && pendingBytes >= p.cfg.BatchSizeBytes) {
			if err := flush(); err != nil {
				return err
			}
		}
		return nil
	})

	// Flush whatever remains, even on cancellation, so progress survives
	// the interrupt before it propagates.
	if flushErr := flush(); flushErr != nil && iterErr == nil {
		iterErr = flushErr
	}

	if ui != nil {
		ui.Wait()
	}

	summary.Elapsed = time.Since(started)
	if errors.Is(iterErr, context.Canceled) {
		iterErr = domain.NewError(domain.KindCancelled, iterErr)
	}
	return summary, iterErr
}

func (p *Pipeline) flushBatch(ctx context.Context, pending []pendingDownload, ui *progress.UI, summary *Summary) error {
	items := make([]download.Item, len(pending))
	for i, pd := range pending {
		items[i] = pd.item
	}

	results, batchErr := p.executor.RunBatch(ctx, items, ui)

	for i, res := range results {
		pd := pending[i]
		if res.Err != nil {
			kind := domain.KindOf(res.Err)
			summary.ErrorsByKind[kind]++
			if kind == domain.KindCancelled {
				// A cancelled item gets no message row at all; the next
				// run re-yields the message and resolves it cleanly.
				continue
			}
			if kind == domain.KindSizeLimitExceeded {
				summary.Skipped++
				summary.BytesSkipped += pd.item.DeclaredSize
			}
			// The message is still persisted, just with a null
			// media_ref; a later run may resolve the media.
			if err := p.persistMessage(pd.entity, pd.message, pd.remote); err != nil {
				return err
			}
			summary.Messages++
			continue
		}

		pd.message.MediaRef = res.MediaID
		if err := p.persistMessage(pd.entity, pd.message, pd.remote); err != nil {
			return err
		}
		summary.Messages++
		summary.Downloaded++
		summary.BytesDownloaded += pd.item.DeclaredSize
	}

	if batchErr != nil {
		return batchErr
	}
	return nil
}

// persistMessage writes the message row plus any child rows (reply,
// buttons, links, reactions, web preview). Each sub-store write is
// autocommitted immediately so a crash never loses a finished message.
func (p *Pipeline) persistMessage(entityID int64, msg domain.Message, rm RemoteMessage) error {
	wpID, err := p.maybeStoreWebPreview(rm)
	if err != nil {
		return err
	}
	if wpID != 0 {
		msg.WebPreviewID = wpID
	}

	if rm.Reply != nil && rm.Reply.QuotedMessageID != 0 {
		if err := p.replies.Put(msg.ID, entityID, rm.Reply.QuotedMessageID, rm.Reply.QuotedText, rm.Reply.QuotedSenderID); err != nil {
			return fmt.Errorf("persist reply: %w", err)
		}
	}

	if err := p.messages.Put(&msg); err != nil {
		return fmt.Errorf("persist message %d: %w", msg.ID, err)
	}

	for _, b := range rm.Buttons {
		if err := p.buttons.Put(&domain.Button{MessageID: msg.ID, EntityID: entityID, Row: b.Row, Col: b.Col, Text: b.Text, URL: b.URL}); err != nil {
			return fmt.Errorf("persist button: %w", err)
		}
	}
	for i, link := range rm.Links {
		if err := p.links.Put(&domain.Link{MessageID: msg.ID, EntityID: entityID, Position: i, URL: link}); err != nil {
			return fmt.Errorf("persist link: %w", err)
		}
	}
	for _, reaction := range rm.Reactions {
		if err := p.reactions.Put(&domain.Reaction{MessageID: msg.ID, EntityID: entityID, Emoji: reaction.Emoji, Count: reaction.Count}); err != nil {
			return fmt.Errorf("persist reaction: %w", err)
		}
	}

	return nil
}

func (p *Pipeline) maybeStoreWebPreview(rm RemoteMessage) (int64, error) {
	if rm.Media == nil || rm.Media.WebPage == nil {
		return 0, nil
	}
	wp := rm.Media.WebPage
	id, err := p.webPreviews.Put(&domain.WebPreview{URL: wp.URL, Title: wp.Title, Description: wp.Description, SiteName: wp.SiteName})
	if err != nil {
		return 0, fmt.Errorf("persist web preview: %w", err)
	}
	return id, nil
}

func discriminatorFor(desc domain.RemoteMediaDescriptor) string {
	switch {
	case desc.Photo != nil:
		return "photo"
	case desc.Document != nil:
		d := desc.Document
		switch {
		case d.IsVoice:
			return "voice"
		case d.IsVideo:
			return "video"
		case d.IsAnimated:
			return "sticker"
		default:
			return "document"
		}
	case desc.WebPage != nil:
		return "webpage"
	default:
		return ""
	}
}

func mediaTypeFor(rm RemoteMessage) string {
	if rm.ServiceKind != "" {
		return "service"
	}
	return ""
}
