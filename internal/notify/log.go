package notify

import (
	"context"
	"log/slog"
)

// LogSender writes codes to the log instead of mailing them. It is selected
// when no SMTP relay is configured, so local signups can still be verified.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(ctx context.Context, email, code, username string) error {
	s.logger.InfoContext(ctx, "otp issued (log delivery)",
		slog.String("email", MaskEmail(email)),
		slog.String("username", username),
		slog.String("code", code),
	)
	return nil
}
