package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/mobileshop/pkg/httpclient"
)

// DefaultMailjetBaseURL is the Mailjet API root.
const DefaultMailjetBaseURL = "https://api.mailjet.com"

// MailjetConfig configures MailjetMailer.
type MailjetConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	FromEmail string
	FromName  string
}

// MailjetMailer sends through the Mailjet v3.1 send API.
type MailjetMailer struct {
	cfg    MailjetConfig
	client *httpclient.CircuitBreakerClient
	logger *slog.Logger
}

// NewMailjetMailer creates a mailer that calls Mailjet through client.
func NewMailjetMailer(cfg MailjetConfig, client *httpclient.CircuitBreakerClient, logger *slog.Logger) *MailjetMailer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMailjetBaseURL
	}
	return &MailjetMailer{cfg: cfg, client: client, logger: logger}
}

type mailjetAddress struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type mailjetMessage struct {
	From     mailjetAddress   `json:"From"`
	To       []mailjetAddress `json:"To"`
	Subject  string           `json:"Subject"`
	TextPart string           `json:"TextPart,omitempty"`
	HTMLPart string           `json:"HTMLPart,omitempty"`
}

type mailjetRequest struct {
	Messages []mailjetMessage `json:"Messages"`
}

type mailjetResponse struct {
	Messages []struct {
		Status string `json:"Status"`
		Errors []struct {
			ErrorMessage string `json:"ErrorMessage"`
		} `json:"Errors"`
	} `json:"Messages"`
}

// Send delivers msg.
func (m *MailjetMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(mailjetRequest{Messages: []mailjetMessage{{
		From:     mailjetAddress{Email: m.cfg.FromEmail, Name: m.cfg.FromName},
		To:       []mailjetAddress{{Email: msg.To, Name: msg.ToName}},
		Subject:  msg.Subject,
		TextPart: msg.Text,
		HTMLPart: msg.HTML,
	}}})
	if err != nil {
		return fmt.Errorf("encode mailjet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/v3.1/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mailjet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(m.cfg.APIKey, m.cfg.SecretKey)

	resp, err := m.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("send mailjet request: %w", err)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp, "mailjet")
	}
	defer func() { _ = resp.Body.Close() }()

	var out mailjetResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return fmt.Errorf("decode mailjet response: %w", err)
	}
	for _, r := range out.Messages {
		if r.Status != "success" {
			if len(r.Errors) > 0 {
				return fmt.Errorf("mailjet rejected message: %s", r.Errors[0].ErrorMessage)
			}
			return fmt.Errorf("mailjet rejected message: status %s", r.Status)
		}
	}

	m.logger.DebugContext(ctx, "email sent via mailjet", slog.String("to", msg.To))
	return nil
}
