package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/h33h/TelegramBackup/internal/app"
	"github.com/h33h/TelegramBackup/internal/hashpool"
	"github.com/h33h/TelegramBackup/internal/reconcile"
	"github.com/h33h/TelegramBackup/internal/store"
)

// newReconcileCmd runs the Reconciler's three passes offline, over every
// already-backed-up entity directory under the store path, without
// connecting to Telegram. Useful for maintenance between scheduled backups.
func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Re-index, sweep orphans, and collapse duplicates across all entity directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			entries, err := os.ReadDir(a.Config.StorePath)
			if err != nil {
				return fmt.Errorf("read store path: %w", err)
			}

			for _, entry := range entries {
				if !entry.IsDir() || entry.Name() == ".session" {
					continue
				}

				dir := filepath.Join(a.Config.StorePath, entry.Name())
				dbPath := filepath.Join(dir, "backup.db")
				if _, err := os.Stat(dbPath); err != nil {
					continue
				}

				if err := reconcileEntityDir(a, dir, dbPath); err != nil {
					fmt.Printf("%s: error: %v\n", entry.Name(), err)
					continue
				}
			}
			return nil
		},
	}
}

func reconcileEntityDir(a *app.App, dir, dbPath string) error {
	s, err := store.New(dbPath, a.Log)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.EnsureHashAlgorithm(a.Config.Download.HashAlgorithm); err != nil {
		return err
	}

	media := store.NewMediaStore(s)
	pool := hashpool.New(a.Config.Download.HashAlgorithm, 2)
	defer pool.Close()

	r := reconcile.New(s, media, pool, filepath.Join(dir, "media"), a.Log)
	report, err := r.Run()
	if err != nil {
		return err
	}

	fmt.Printf("%s: reindexed=%d orphans=%d unused=%d duplicates=%d\n",
		filepath.Base(dir), report.Reindexed, report.OrphansDeleted, report.UnusedDeleted, report.DuplicatesMerged)
	return nil
}
