package mail

import (
	"context"
	"sync"
	"time"
)

// SentMail records one Send call on a Mock.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// Mock is a scripted Mailer for tests. Sends are recorded; Poll pops the
// next queued reply, or reports no message (nil) when the queue is empty,
// without waiting out the timeout.
type Mock struct {
	mu sync.Mutex

	Sent    []SentMail
	Replies []*Message
	SendErr error

	next int
}

// Send records the message.
func (m *Mock) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

// Poll returns the next scripted reply. A nil entry in Replies simulates
// a vendor timing out.
func (m *Mock) Poll(_ context.Context, _ string, _ time.Duration) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.next >= len(m.Replies) {
		return nil, nil
	}
	reply := m.Replies[m.next]
	m.next++
	return reply, nil
}

// SentCount reports how many messages were sent.
func (m *Mock) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
