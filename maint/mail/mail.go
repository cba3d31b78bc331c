// Package mail defines the email boundary used by the report and
// procurement nodes: fire-and-forget send, and a bounded poll for replies.
package mail

import (
	"context"
	"time"
)

// Message is an email received by Poll.
type Message struct {
	From    string
	Subject string
	Body    string
}

// Mailer sends outbound mail and polls for replies.
//
// Poll blocks until a message matching the filter arrives or the timeout
// elapses, returning nil with no error on timeout. The procurement node
// treats a nil message as "no response" and moves to the next vendor.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
	Poll(ctx context.Context, filter string, timeout time.Duration) (*Message, error)
}
