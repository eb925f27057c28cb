package main

import (
	"github.com/spf13/cobra"

	"github.com/h33h/TelegramBackup/internal/app"
	"github.com/h33h/TelegramBackup/internal/infra/config"
)

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram-archive",
		Short: "Back up a Telegram account's messages and media to local storage",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON config file (defaults per internal/infra/config)")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newBackupAllCmd())
	cmd.AddCommand(newReconcileCmd())

	return cmd
}

// loadApp loads config and builds an *app.App shared by every verb.
func loadApp() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}
