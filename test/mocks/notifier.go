package mocks

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockNotifier records operator notices instead of sending them.
type MockNotifier struct {
	Sent []SentNotice
	Err  error
	mu   sync.Mutex
}

// SentNotice represents a recorded notice
type SentNotice struct {
	Text string
	Time time.Time
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Sent: make([]SentNotice, 0)}
}

// Notify records text and returns the configured error.
func (m *MockNotifier) Notify(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentNotice{Text: text, Time: time.Now()})
	return m.Err
}

// GetSent returns a copy of the recorded notices
func (m *MockNotifier) GetSent() []SentNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotice, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// Contains reports whether any notice includes substr.
func (m *MockNotifier) Contains(substr string) bool {
	for _, n := range m.GetSent() {
		if strings.Contains(n.Text, substr) {
			return true
		}
	}
	return false
}

// Clear removes the recorded notices
func (m *MockNotifier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = make([]SentNotice, 0)
}
