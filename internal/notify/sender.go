package notify

import "context"

// Sender is the delivery channel for one rendered digest copy. The production
// implementation wraps the mail client; tests substitute fakes.
type Sender interface {
	// Name returns the channel identifier (e.g. "mail").
	Name() string

	// Send delivers the digest to one recipient and returns the channel
	// message id.
	Send(ctx context.Context, to Recipient, subject, htmlBody string) (string, error)
}

// Recipient is one entry in the configured distribution list.
type Recipient struct {
	Email string
	Name  string
}
