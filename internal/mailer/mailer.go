// Package mailer sends transactional e-mail.
package mailer

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// Message is one outgoing e-mail.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Validate checks the fields every backend needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return apperrors.InvalidInput("recipient is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return apperrors.InvalidInput("subject is required")
	}
	if m.Text == "" && m.HTML == "" {
		return apperrors.InvalidInput("message body is required")
	}
	return nil
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs msg.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "email sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("text_length", len(msg.Text)),
	)
	return nil
}
