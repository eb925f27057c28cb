package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Close the persisted Telegram session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if !a.Bootstrap.IsAuthenticated() {
				fmt.Println("no session to close")
				return nil
			}
			if err := a.Bootstrap.Logout(); err != nil {
				return err
			}
			fmt.Println("session closed")
			return nil
		},
	}
}
