// Package mail is the transactional-email channel client. It speaks the
// SendGrid v3 mail/send API directly rather than pulling in an SDK; the engine
// only needs one call.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/st20medic/trucks/internal/config"
)

// ErrAuth means the channel rejected our credentials. Fatal for the whole
// invocation: no recipient will succeed, so the caller aborts the pass.
var ErrAuth = errors.New("mail channel authentication failed")

// RejectedError is a per-recipient rejection (bad address, policy block).
// Soft: other recipients are unaffected.
type RejectedError struct {
	To     string
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("recipient %s rejected (status %d): %s", e.To, e.Status, e.Reason)
}

// Message is one outbound email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
}

type Client struct {
	baseURL     string
	apiKey      string
	fromAddress string
	fromName    string
	replyTo     string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

func NewClient(cfg *config.Config) *Client {
	perMinute := cfg.MailRatePerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Client{
		baseURL:     cfg.MailAPIURL,
		apiKey:      cfg.MailAPIKey,
		fromAddress: cfg.MailFromAddress,
		fromName:    cfg.MailFromName,
		replyTo:     cfg.MailReplyTo,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendPayload struct {
	Personalizations []struct {
		To []address `json:"to"`
	} `json:"personalizations"`
	From    address  `json:"from"`
	ReplyTo *address `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

// Send delivers one message and returns the channel message id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("missing mail api key: %w", ErrAuth)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	payload := sendPayload{
		From:    address{Email: c.fromAddress, Name: c.fromName},
		Subject: msg.Subject,
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []address `json:"to"`
	}{To: []address{{Email: msg.To, Name: msg.ToName}}})
	payload.Content = append(payload.Content, struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{Type: "text/html", Value: msg.HTMLBody})
	if c.replyTo != "" {
		payload.ReplyTo = &address{Email: c.replyTo}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mail request to %s failed: %w", msg.To, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("status %d: %w", res.StatusCode, ErrAuth)

	case res.StatusCode >= 400 && res.StatusCode < 500:
		return "", &RejectedError{To: msg.To, Status: res.StatusCode, Reason: readErrorReason(res.Body)}

	case res.StatusCode >= 500:
		return "", fmt.Errorf("mail channel error for %s: status %d", msg.To, res.StatusCode)
	}

	messageID := res.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = "unknown"
	}
	return messageID, nil
}

func readErrorReason(r io.Reader) string {
	var body struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(r).Decode(&body); err == nil && len(body.Errors) > 0 {
		return body.Errors[0].Message
	}
	return "rejected by channel"
}
