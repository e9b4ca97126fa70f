package notify

import (
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/config"
)

// Mailer raises email notices to operators when the automated abuse signal
// blocks an address. A nil *Mailer is valid and does nothing, so callers
// never branch on whether SMTP is configured.
type Mailer struct {
	client *mail.Client
	from   string
	to     []string
	logger *zap.Logger
}

func NewMailer(cfg config.SMTP, logger *zap.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &Mailer{
		client: client,
		from:   cfg.From,
		to:     cfg.To,
		logger: logger,
	}, nil
}

// NotifyAutoBlock reports that an address was blocked by the abuse
// endpoint. Sending happens off the request path; a delivery failure is
// logged and otherwise ignored.
func (m *Mailer) NotifyAutoBlock(ip, reason string, expiresAt time.Time) {
	if m == nil {
		return
	}

	go func() {
		msg := mail.NewMsg()
		if err := msg.From(m.from); err != nil {
			m.logger.Error("Failed to set From address", zap.Error(err))
			return
		}
		if err := msg.To(m.to...); err != nil {
			m.logger.Error("Failed to set To address", zap.Error(err))
			return
		}

		msg.Subject(fmt.Sprintf("Abuse auto-block - %s", ip))
		msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
			"The address %s was automatically blocked.\n\nReason: %s\nBlock expires: %s",
			ip,
			reason,
			expiresAt.Format(time.RFC3339),
		))

		if err := m.client.DialAndSend(msg); err != nil {
			m.logger.Error("Failed to send abuse notice", zap.Error(err))
		}
	}()
}
