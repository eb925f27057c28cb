package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/h33h/TelegramBackup/internal/telegram/session"
)

func newLoginCmd() *cobra.Command {
	var useQR bool
	var phone string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate this engine against Telegram and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			ctx := context.Background()
			prompt := stdinPrompt

			if useQR {
				return a.Bootstrap.LoginWithQR(ctx, func(token string) {
					session.RenderQR(token, a.Log)
				}, prompt)
			}

			if phone == "" {
				phone, err = prompt("phone number (with country code, e.g. +15551234567)")
				if err != nil {
					return err
				}
			}
			return a.Bootstrap.LoginWithCode(ctx, phone, prompt)
		},
	}

	cmd.Flags().BoolVar(&useQR, "qr", false, "log in by scanning a QR code instead of entering a phone+code")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number for code-based login")

	return cmd
}

// stdinPrompt implements session.PromptFunc against the controlling
// terminal, masking input for anything that looks like a password prompt.
func stdinPrompt(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	if strings.Contains(prompt, "password") && term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
