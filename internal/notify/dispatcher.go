package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/st20medic/trucks/internal/mail"
	"github.com/st20medic/trucks/internal/metrics"
)

// DispatchResult reports per-recipient outcomes for one digest.
type DispatchResult struct {
	Accepted   []string          `json:"accepted"`
	Rejected   []string          `json:"rejected"`
	MessageIDs map[string]string `json:"message_ids"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// AllAccepted reports whether every recipient send succeeded. Only then may
// suppression state advance for the vehicles in the batch.
func (r DispatchResult) AllAccepted() bool {
	return len(r.Rejected) == 0 && len(r.Accepted) > 0
}

// Dispatcher renders one digest and fans it out to the fixed recipient list.
type Dispatcher struct {
	sender     Sender
	recipients []Recipient
	logger     *zap.Logger
}

func NewDispatcher(sender Sender, recipients []Recipient, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		recipients: recipients,
		logger:     logger.Named("dispatcher"),
	}
}

// Dispatch sends the rendered digest once per recipient. Each send is
// independent: one recipient failing never blocks the others. A channel
// authentication failure is the exception — it is fatal for the invocation
// and is returned as an error wrapping mail.ErrAuth. An empty entry list is
// a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, entries []DigestEntry, now time.Time) (DispatchResult, error) {
	result := DispatchResult{MessageIDs: map[string]string{}, Failures: map[string]string{}}
	if len(entries) == 0 {
		return result, nil
	}
	if len(d.recipients) == 0 {
		d.logger.Warn("no digest recipients configured, nothing dispatched")
		return result, nil
	}

	subject, htmlBody, err := RenderDigest(entries, now)
	if err != nil {
		return result, err
	}

	type outcome struct {
		recipient Recipient
		messageID string
		err       error
	}
	outcomes := make([]outcome, len(d.recipients))

	g, gctx := errgroup.WithContext(ctx)
	for i, rcpt := range d.recipients {
		i, rcpt := i, rcpt
		g.Go(func() error {
			id, err := d.sender.Send(gctx, rcpt, subject, htmlBody)
			outcomes[i] = outcome{recipient: rcpt, messageID: id, err: err}
			if errors.Is(err, mail.ErrAuth) {
				// Cancel remaining sends; none of them can succeed.
				return err
			}
			return nil
		})
	}
	authErr := g.Wait()

	for _, o := range outcomes {
		switch {
		case o.err == nil && o.messageID != "":
			result.Accepted = append(result.Accepted, o.recipient.Email)
			result.MessageIDs[o.recipient.Email] = o.messageID
			metrics.SendsAccepted.Add(1)
		default:
			result.Rejected = append(result.Rejected, o.recipient.Email)
			if o.err != nil {
				result.Failures[o.recipient.Email] = o.err.Error()
				d.logger.Warn("digest send failed",
					zap.String("channel", d.sender.Name()),
					zap.String("recipient", o.recipient.Email),
					zap.Error(o.err))
			}
			metrics.SendsRejected.Add(1)
		}
	}

	if authErr != nil {
		return result, authErr
	}
	return result, nil
}
