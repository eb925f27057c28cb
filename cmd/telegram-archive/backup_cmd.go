package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/spf13/cobra"

	"github.com/h33h/TelegramBackup/internal/ingest"
	"github.com/h33h/TelegramBackup/internal/telegram"
)

func newBackupCmd() *cobra.Command {
	var limit int
	var noMedia bool

	cmd := &cobra.Command{
		Use:   "backup <entity-id>",
		Short: "Back up one entity's messages and media, newest-first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entity id %q: %w", args[0], err)
			}

			a, err := loadApp()
			if err != nil {
				return err
			}

			return a.Bootstrap.Connect(context.Background(), func(ctx context.Context, client *gotdtelegram.Client) error {
				adapter := telegram.New(client)
				entity, err := findEntity(ctx, adapter, entityID)
				if err != nil {
					return err
				}

				summary, err := a.BackupEntity(ctx, adapter, entity, limit, !noMedia)
				printSummary(entity.Name, summary)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages to process, newest-first (0 = unbounded)")
	cmd.Flags().BoolVar(&noMedia, "no-media", false, "persist messages without downloading their media")

	return cmd
}

func newBackupAllCmd() *cobra.Command {
	var limit int
	var noMedia bool

	cmd := &cobra.Command{
		Use:   "backup-all",
		Short: "Back up every dialog the account can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			return a.Bootstrap.Connect(context.Background(), func(ctx context.Context, client *gotdtelegram.Client) error {
				adapter := telegram.New(client)
				entities, err := adapter.ListEntities(ctx)
				if err != nil {
					return err
				}

				var failures int
				for _, entity := range entities {
					summary, err := a.BackupEntity(ctx, adapter, entity, limit, !noMedia)
					printSummary(entity.Name, summary)
					if err != nil {
						failures++
						fmt.Printf("  error: %v\n", err)
					}
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d entities failed", failures, len(entities))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages to process per entity, newest-first (0 = unbounded)")
	cmd.Flags().BoolVar(&noMedia, "no-media", false, "persist messages without downloading their media")

	return cmd
}

func findEntity(ctx context.Context, adapter *telegram.Client, id int64) (telegram.Entity, error) {
	entities, err := adapter.ListEntities(ctx)
	if err != nil {
		return telegram.Entity{}, err
	}
	for _, e := range entities {
		if e.ID == id {
			return e, nil
		}
	}
	return telegram.Entity{}, fmt.Errorf("entity %d not found among visible dialogs", id)
}

func printSummary(name string, s ingest.Summary) {
	fmt.Printf("%s: %d messages, %d downloaded (%d bytes), %d skipped (%d bytes) in %s\n",
		name, s.Messages, s.Downloaded, s.BytesDownloaded, s.Skipped, s.BytesSkipped, s.Elapsed.Round(time.Millisecond))
	for kind, count := range s.ErrorsByKind {
		fmt.Printf("  %s: %d\n", kind, count)
	}
}
