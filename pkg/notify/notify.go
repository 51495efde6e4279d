// Package notify delivers block notifications to operations staff. A
// notifier failing never fails the request that triggered it; the gate
// logs and moves on.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

const defaultSubject = "Device cap exceeded"

const defaultBodyTemplate = `User {{.UserID}} was blocked at {{.BlockedAt}}.

The device with fingerprint {{.Fingerprint}} exceeded the device cap.
All sessions for this user have been terminated. Use the admin console
to review and revoke the user's device record.
`

// SMTPConfig holds the mail server settings for the email notifier
type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
	To       string
}

// EmailNotifier emails operations staff when a user transitions into the
// blocked state. It satisfies the gate's BlockNotifier interface.
type EmailNotifier struct {
	config SMTPConfig
	client *mail.Client
	tmpl   *template.Template
}

// NewEmailNotifier creates an email notifier from SMTP settings
func NewEmailNotifier(config SMTPConfig) (*EmailNotifier, error) {
	if config.From == "" || config.To == "" {
		return nil, fmt.Errorf("email notifier requires From and To addresses")
	}

	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(30 * time.Second),
	}

	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	if config.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
			mail.WithTLSPolicy(mail.NoTLS),
		)
	}

	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		slog.Error("Failed to create mail client", "host", config.Host, "err", err)
		return nil, err
	}

	tmpl, err := template.New("blocked").Parse(defaultBodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification template: %w", err)
	}

	return &EmailNotifier{config: config, client: client, tmpl: tmpl}, nil
}

// NotifyBlocked emails the configured recipient about a fresh block
func (n *EmailNotifier) NotifyBlocked(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	var body bytes.Buffer
	err := n.tmpl.Execute(&body, map[string]string{
		"UserID":      userID.String(),
		"Fingerprint": fingerprint,
		"BlockedAt":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to render notification body: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(n.config.From); err != nil {
		return fmt.Errorf("failed to set from address: %w", err)
	}
	if err := msg.To(n.config.To); err != nil {
		return fmt.Errorf("failed to set to address: %w", err)
	}
	msg.Subject(defaultSubject)
	msg.SetBodyString(mail.TypeTextPlain, body.String())

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		slog.Error("Failed to send block notification email", "userID", userID, "err", err)
		return err
	}

	slog.Info("Block notification sent", "userID", userID, "to", n.config.To)
	return nil
}

// SlogNotifier records block transitions in the structured log only. It is
// the default when no mail server is configured.
type SlogNotifier struct{}

// NewSlogNotifier creates a log-only notifier
func NewSlogNotifier() *SlogNotifier {
	return &SlogNotifier{}
}

// NotifyBlocked logs the block transition
func (n *SlogNotifier) NotifyBlocked(_ context.Context, userID uuid.UUID, fingerprint string) error {
	slog.Warn("User blocked by device cap", "userID", userID, "fingerprint", fingerprint)
	return nil
}
