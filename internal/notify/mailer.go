package notify

import (
	"context"

	"github.com/st20medic/trucks/internal/mail"
)

// MailSender adapts the mail channel client to the Sender interface.
type MailSender struct {
	client *mail.Client
}

func NewMailSender(client *mail.Client) *MailSender {
	return &MailSender{client: client}
}

func (m *MailSender) Name() string { return "mail" }

func (m *MailSender) Send(ctx context.Context, to Recipient, subject, htmlBody string) (string, error) {
	return m.client.Send(ctx, mail.Message{
		To:       to.Email,
		ToName:   to.Name,
		Subject:  subject,
		HTMLBody: htmlBody,
	})
}
