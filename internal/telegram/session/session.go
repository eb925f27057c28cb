// Package session handles phone+code and QR-token login against
// gotd/td's auth flows, with the resulting MTProto session persisted to
// a file under the store path so later runs reconnect without
// re-authenticating.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
)

// PromptFunc is how Bootstrap asks the operator for interactive input
// (phone number, login code, 2FA password). The CLI wires these to stdin.
type PromptFunc func(prompt string) (string, error)

// Bootstrap owns the session file and drives gotd/td's auth flow to
// produce a ready-to-use *telegram.Client.
type Bootstrap struct {
	appID      int
	appHash    string
	sessionDir string
	log        *logger.Logger
}

// New builds a Bootstrap. sessionDir is created by the login and connect
// flows if missing; the session
// file lives at <sessionDir>/session.json. One account per store path.
func New(appID int, appHash, sessionDir string, log *logger.Logger) *Bootstrap {
	return &Bootstrap{appID: appID, appHash: appHash, sessionDir: sessionDir, log: log.Sub("session")}
}

func (b *Bootstrap) sessionPath() string {
	return filepath.Join(b.sessionDir, "session.json")
}

// newClient constructs the gotd/td client wired to this Bootstrap's
// persistent file-backed session storage.
func (b *Bootstrap) newClient() (*telegram.Client, error) {
	if err := os.MkdirAll(b.sessionDir, 0700); err != nil {
		return nil, domain.NewError(domain.KindAuthFailed, fmt.Errorf("create session dir: %w", err))
	}

	storage := &session.FileStorage{Path: b.sessionPath()}
	return telegram.NewClient(b.appID, b.appHash, telegram.Options{
		SessionStorage: storage,
	}), nil
}

// IsAuthenticated reports whether a usable session is already persisted,
// without starting a new login flow. Connect still performs the MTProto
// handshake; this is a best-effort pre-check used by Connect and the
// CLI's `logout` verb.
func (b *Bootstrap) IsAuthenticated() bool {
	info, err := os.Stat(b.sessionPath())
	return err == nil && info.Size() > 0
}

// Logout removes the persisted session file, so the next run must
// authenticate from scratch. Removing a session that never existed is
// not an error.
func (b *Bootstrap) Logout() error {
	if err := os.Remove(b.sessionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// LoginWithCode runs the phone+code (+ optional 2FA password) flow and
// persists the resulting session. prompt is called for the login code and,
// if the account has cloud password 2FA enabled, the password.
func (b *Bootstrap) LoginWithCode(ctx context.Context, phone string, prompt PromptFunc) error {
	client, err := b.newClient()
	if err != nil {
		return err
	}

	return client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(
			codeAuthenticator{phone: phone, prompt: prompt},
			auth.SendCodeOptions{},
		)
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return domain.NewError(domain.KindAuthFailed, fmt.Errorf("authenticate: %w", err))
		}
		b.log.Infof("authenticated as %s", phone)
		return nil
	})
}

// LoginWithQR runs the QR-token login flow, rendering each refreshed token
// as a terminal QR code via render until the companion device confirms it.
// prompt is called for the 2FA password when the account has one.
func (b *Bootstrap) LoginWithQR(ctx context.Context, render func(token string), prompt PromptFunc) error {
	if err := os.MkdirAll(b.sessionDir, 0700); err != nil {
		return domain.NewError(domain.KindAuthFailed, fmt.Errorf("create session dir: %w", err))
	}

	// The QR flow needs an update dispatcher: the server confirms the scan
	// by pushing updateLoginToken rather than answering an RPC.
	dispatcher := tg.NewUpdateDispatcher()
	loggedIn := qrlogin.OnLoginToken(dispatcher)

	client := telegram.NewClient(b.appID, b.appHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: b.sessionPath()},
		UpdateHandler:  dispatcher,
	})

	return client.Run(ctx, func(ctx context.Context) error {
		_, err := client.QR().Auth(ctx, loggedIn, func(ctx context.Context, token qrlogin.Token) error {
			render(token.URL())
			return nil
		})
		if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
			pwd, perr := prompt("two-factor password")
			if perr != nil {
				return perr
			}
			if _, perr := client.Auth().Password(ctx, pwd); perr != nil {
				return domain.NewError(domain.KindAuthFailed, fmt.Errorf("2fa password: %w", perr))
			}
		} else if err != nil {
			return domain.NewError(domain.KindAuthFailed, fmt.Errorf("qr login: %w", err))
		}
		b.log.Infof("authenticated via QR")
		return nil
	})
}

// Connect opens the already-persisted session for normal operation,
// failing with AuthFailed if no session exists or gotd/td rejects it.
func (b *Bootstrap) Connect(ctx context.Context, fn func(ctx context.Context, client *telegram.Client) error) error {
	if !b.IsAuthenticated() {
		return domain.NewError(domain.KindAuthFailed, fmt.Errorf("no persisted session at %s; run login first", b.sessionPath()))
	}

	client, err := b.newClient()
	if err != nil {
		return err
	}

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return domain.NewError(domain.KindAuthFailed, fmt.Errorf("auth status: %w", err))
		}
		if !status.Authorized {
			return domain.NewError(domain.KindAuthFailed, fmt.Errorf("session at %s is no longer authorized", b.sessionPath()))
		}
		return fn(ctx, client)
	})
}

// codeAuthenticator implements auth.UserAuthenticator by prompting the
// operator for the login code sent to their device.
type codeAuthenticator struct {
	phone  string
	prompt PromptFunc
}

func (c codeAuthenticator) Phone(ctx context.Context) (string, error) { return c.phone, nil }

func (c codeAuthenticator) Password(ctx context.Context) (string, error) {
	return c.prompt("two-factor password")
}

func (c codeAuthenticator) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (c codeAuthenticator) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, domain.NewError(domain.KindAuthFailed, fmt.Errorf("account %s is not registered; sign-up is out of scope", c.phone))
}

func (c codeAuthenticator) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	return c.prompt("login code")
}
