// Package notify delivers one-time codes to users.
//
// Two Senders are provided: SMTPSender for real delivery and LogSender,
// which writes the code to the structured log for local development.
package notify

import (
	"context"
	"strings"
)

// Sender delivers a verification code. A nil error means the message was
// accepted for delivery; nothing here retries.
type Sender interface {
	SendOTP(ctx context.Context, email, code, username string) error
}

// MaskEmail hides most of the local part so addresses can be logged:
// "jane@example.com" becomes "j***@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
