// Package notify implements the Notifier (C9) of the replication
// orchestrator: a small Send(subject, html) interface with a Brevo-backed
// production implementation and a stdout fallback that is a correctness
// requirement, not a degraded mode (spec.md §4.10).
package notify

import "context"

// Sender is satisfied by both BrevoSender and StdoutSender, and by
// cluster.Notifier (structurally identical) — the control loop depends on
// cluster.Notifier so this package never imports cluster, avoiding a
// cycle; main wires a notify.Sender in wherever cluster.Notifier is
// required.
type Sender interface {
	Send(ctx context.Context, subject, html string) error
}

// Chain tries each sender in order, stopping at the first one that
// succeeds. It exists so a BrevoSender can be paired with a StdoutSender
// fallback without special-casing "API unavailable" inside BrevoSender
// itself (spec.md §9: "the stdout-fallback is a concrete implementation,
// not a branch inside the notifier").
type Chain struct {
	Senders []Sender
}

func (c Chain) Send(ctx context.Context, subject, html string) error {
	var lastErr error
	for _, s := range c.Senders {
		if err := s.Send(ctx, subject, html); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
