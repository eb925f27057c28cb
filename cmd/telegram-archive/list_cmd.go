package main

import (
	"context"
	"fmt"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/spf13/cobra"

	"github.com/h33h/TelegramBackup/internal/telegram"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the account's dialogs (entities) available to back up",
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
				for _, e := range entities {
					fmt.Printf("%d\t%s\n", e.ID, e.Name)
				}
				return nil
			})
		},
	}
}
