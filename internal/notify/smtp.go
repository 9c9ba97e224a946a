package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the relay settings. Username may be empty for relays that
// do not require authentication.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// OTPTTL is only used for the "expires in N minutes" line.
	OTPTTL time.Duration
}

// mailer is the part of *mail.Client the sender uses.
type mailer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPSender sends verification codes through an SMTP relay with go-mail.
type SMTPSender struct {
	client mailer
	from   string
	ttl    time.Duration
	logger *slog.Logger
}

// NewSMTPSender builds a client for cfg. No connection is made until the
// first send.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("notify: SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("notify: sender address is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: creating SMTP client: %w", err)
	}

	return newSMTPSender(client, cfg.From, cfg.OTPTTL, logger), nil
}

func newSMTPSender(client mailer, from string, ttl time.Duration, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SMTPSender{client: client, from: from, ttl: ttl, logger: logger}
}

// SendOTP renders the verification email and hands it to the relay.
func (s *SMTPSender) SendOTP(ctx context.Context, email, code, username string) error {
	msg, err := s.buildMessage(email, code, username)
	if err != nil {
		return err
	}

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: sending otp email: %w", err)
	}

	s.logger.Info("otp email sent", slog.String("email", MaskEmail(email)))
	return nil
}

func (s *SMTPSender) buildMessage(email, code, username string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("notify: invalid from address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("notify: invalid recipient: %w", err)
	}
	msg.Subject(otpSubject)

	data := newOTPData(code, username, s.ttl)
	if err := msg.SetBodyHTMLTemplate(otpHTML, data); err != nil {
		return nil, fmt.Errorf("notify: rendering html body: %w", err)
	}
	if err := msg.AddAlternativeTextTemplate(otpText, data); err != nil {
		return nil, fmt.Errorf("notify: rendering text body: %w", err)
	}
	return msg, nil
}
