package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

// MockPublisher is an in-memory NATS publisher. It matches the Publish and
// Subscribe signatures of natsclient.Client.
type MockPublisher struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	order         []string
	subscriptions map[string][]func(context.Context, []byte)
	failWith      error
	closed        bool
}

// NewMockPublisher creates an empty publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]func(context.Context, []byte)),
	}
}

// FailWith makes every later Publish return err. A nil err restores success.
func (p *MockPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Publish records data and delivers it to subscribers of subject.
func (p *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("publisher is closed")
	}
	if p.failWith != nil {
		err := p.failWith
		p.mu.Unlock()
		return err
	}
	p.messages[subject] = append(p.messages[subject], append([]byte(nil), data...))
	p.order = append(p.order, subject)
	handlers := append([]func(context.Context, []byte){}, p.subscriptions[subject]...)
	p.mu.Unlock()

	// Handlers run outside the lock so they may publish themselves.
	for _, handler := range handlers {
		handler(ctx, data)
	}
	return nil
}

// Subscribe registers handler for subject.
func (p *MockPublisher) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	p.subscriptions[subject] = append(p.subscriptions[subject], handler)
	return nil
}

// Messages returns a copy of the messages published on subject.
func (p *MockPublisher) Messages(subject string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([][]byte(nil), p.messages[subject]...)
}

// Subjects returns the distinct subjects published to, sorted.
func (p *MockPublisher) Subjects() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.messages))
	for s := range p.messages {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Count returns the total number of published messages.
func (p *MockPublisher) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Close makes later calls fail.
func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// WaitForMessageCount fails the test unless count messages arrive on subject within timeout.
func WaitForMessageCount(t *testing.T, p *MockPublisher, subject string, count int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(p.Messages(subject)) >= count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, len(p.Messages(subject)))
}
