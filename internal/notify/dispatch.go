// dispatch.go -- bounded fan-out of one message to every notify subscriber.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MGallo-Code/hermes/internal/store"
)

// DefaultConcurrency caps in-flight pushes when Dispatcher.Concurrency is unset.
const DefaultConcurrency = 8

// RecipientLister returns accounts holding a live notify grant.
// Satisfied by *store.PostgresStore.
type RecipientLister interface {
	ListNotifyRecipients(ctx context.Context) ([]store.Recipient, error)
}

// Pusher delivers one message to one token. Satisfied by *Client.
type Pusher interface {
	Push(ctx context.Context, token, message string) (*Result, error)
}

// Outcome is the per-recipient result of a broadcast.
type Outcome struct {
	AccountID   int64
	DisplayName string
	OK          bool
	Status      int
	Message     string
}

// String renders the outcome as the line returned to the operator.
func (o Outcome) String() string {
	if o.OK {
		return fmt.Sprintf("Sending to %s: %s", o.DisplayName, o.Message)
	}
	return fmt.Sprintf("Sending to %s failed: %s (%d)", o.DisplayName, o.Message, o.Status)
}

// BroadcastResult holds one Outcome per recipient, in recipient order.
// Attempted counts pushes actually sent, so it trails len(Outcomes) only when
// the caller's context ended mid-broadcast.
type BroadcastResult struct {
	Outcomes     []Outcome
	Attempted    int
	NoRecipients bool
}

// Delivered counts successful outcomes.
func (r *BroadcastResult) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// Summary is the closing line after the outcome lines.
func (r *BroadcastResult) Summary() string {
	return fmt.Sprintf("We already notified %d subscribers!", r.Attempted)
}

// Lines renders every outcome followed by the summary.
func (r *BroadcastResult) Lines() []string {
	lines := make([]string, 0, len(r.Outcomes)+1)
	for _, o := range r.Outcomes {
		lines = append(lines, o.String())
	}
	return append(lines, r.Summary())
}

// Dispatcher sends a message to every subscriber with bounded concurrency.
type Dispatcher struct {
	Recipients  RecipientLister
	Pusher      Pusher
	Concurrency int
}

// Broadcast pushes message to every current recipient.
// One recipient failing never stops the others; its failure is recorded in its
// Outcome. Only a failure to list recipients is returned as an error.
func (d *Dispatcher) Broadcast(ctx context.Context, message string) (*BroadcastResult, error) {
	recipients, err := d.Recipients.ListNotifyRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	if len(recipients) == 0 {
		return &BroadcastResult{NoRecipients: true}, nil
	}

	limit := d.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	// Each goroutine writes only its own index.
	outcomes := make([]Outcome, len(recipients))
	var attempted atomic.Int64
	var g errgroup.Group
	g.SetLimit(limit)
	for i, rcpt := range recipients {
		g.Go(func() error {
			// A cancelled caller stops new pushes; queued recipients are recorded, not sent.
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{
					AccountID:   rcpt.AccountID,
					DisplayName: rcpt.DisplayName,
					Message:     "not attempted: " + err.Error(),
				}
				return nil
			}
			attempted.Add(1)
			outcomes[i] = d.push(ctx, rcpt, message)
			return nil
		})
	}
	_ = g.Wait()

	res := &BroadcastResult{Outcomes: outcomes, Attempted: int(attempted.Load())}
	slog.InfoContext(ctx, "broadcast finished",
		"attempted", res.Attempted, "delivered", res.Delivered())
	return res, nil
}

func (d *Dispatcher) push(ctx context.Context, rcpt store.Recipient, message string) Outcome {
	out := Outcome{AccountID: rcpt.AccountID, DisplayName: rcpt.DisplayName}
	res, err := d.Pusher.Push(ctx, rcpt.NotifyToken, message)
	if err != nil {
		slog.WarnContext(ctx, "notify push failed", "account_id", rcpt.AccountID, "error", err)
		out.Message = err.Error()
		return out
	}
	out.OK = res.OK()
	out.Status = res.Status
	out.Message = res.Message
	if !out.OK {
		slog.WarnContext(ctx, "notify push rejected",
			"account_id", rcpt.AccountID, "status", res.Status, "message", res.Message)
	}
	return out
}
