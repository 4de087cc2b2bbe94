package mocks

import (
	"context"
	"os"
	"sync"

	"github.com/captioncast/captioncast/internal/encoder"
)

// MockEncoder writes a small placeholder file instead of running ffmpeg.
type MockEncoder struct {
	Jobs []encoder.Job
	// Err, when set, fails every job without writing output.
	Err     error
	Content []byte
	mu      sync.Mutex
}

// NewMockEncoder creates a new mock encoder
func NewMockEncoder() *MockEncoder {
	return &MockEncoder{Content: []byte("mock-video")}
}

// Encode records job and writes Content to job.Output.
func (m *MockEncoder) Encode(_ context.Context, job encoder.Job) error {
	m.mu.Lock()
	m.Jobs = append(m.Jobs, job)
	err := m.Err
	content := m.Content
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return os.WriteFile(job.Output, content, 0o644)
}

// GetJobs returns a copy of the recorded jobs
func (m *MockEncoder) GetJobs() []encoder.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]encoder.Job, len(m.Jobs))
	copy(out, m.Jobs)
	return out
}
