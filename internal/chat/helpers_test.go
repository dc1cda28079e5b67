package chat

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/pawhaven/chatkit/internal/types"
	"github.com/stretchr/testify/require"
)

// countingStats records Incr/Decr totals for assertions.
type countingStats struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingStats() *countingStats {
	return &countingStats{counts: make(map[string]int)}
}

func (s *countingStats) Incr(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]++
}

func (s *countingStats) Decr(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]--
}

func (s *countingStats) RegisterMetric(name string) {}
func (s *countingStats) Run()                       {}

func (s *countingStats) get(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

// frameRecorder captures outbound client frames.
type frameRecorder struct {
	mu     sync.Mutex
	frames []ClientFrame
}

func (r *frameRecorder) Send(payload []byte) error {
	var frame ClientFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return nil
}

func (r *frameRecorder) all() []ClientFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientFrame, len(r.frames))
	copy(out, r.frames)
	return out
}

func (r *frameRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

func (r *frameRecorder) subscribedChannels() []string {
	var channels []string
	for _, frame := range r.all() {
		if frame.Subscribe != nil {
			channels = append(channels, frame.Subscribe.Channel)
		}
	}
	return channels
}

func assertNoDuplicateIDs(t *testing.T, messages []types.Message) {
	t.Helper()
	seen := make(map[string]struct{})
	for _, msg := range messages {
		if msg.ID == "" {
			continue
		}
		_, dup := seen[msg.ID]
		require.False(t, dup, "duplicate server id %q in room log", msg.ID)
		seen[msg.ID] = struct{}{}
	}
}
