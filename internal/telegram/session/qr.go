package session

import (
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/h33h/TelegramBackup/internal/infra/logger"
)

// RenderQR prints token as an ASCII QR code to the terminal for the
// operator to scan with Telegram's "Link Desktop Device" flow.
func RenderQR(token string, log *logger.Logger) {
	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		log.Errorf("failed to render QR code: %v", err)
		fmt.Println("login link:", token)
		return
	}

	fmt.Println()
	fmt.Println(qr.ToSmallString(false))
	fmt.Println()
}
