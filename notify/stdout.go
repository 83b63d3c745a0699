package notify

import (
	"context"
	"fmt"
	"io"
)

// StdoutSender writes the notification to w with sentinel markers. This
// is a correctness requirement (spec.md §4.10: "no silent drop"), the Go
// translation of watcher.py's print(f"--- EMAIL: {subject} ---...")
// fallback path — kept here as its own Sender, not a branch inside
// BrevoSender, per spec.md §9.
type StdoutSender struct {
	W io.Writer
}

func (s StdoutSender) Send(_ context.Context, subject, html string) error {
	_, err := fmt.Fprintf(s.W, "--- EMAIL: %s ---\n%s\n--- END EMAIL ---\n", subject, html)
	return err
}
