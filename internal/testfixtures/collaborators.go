package testfixtures

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/example/chronopact/internal/application"
	"github.com/example/chronopact/internal/ledger"
)

// SentMessage is one message captured by RecordingNotifier.
type SentMessage struct {
	Ref     string
	Channel string
	Message application.Message
}

// RecordingNotifier captures every message and answers with sequential
// references "msg-1", "msg-2"... Setting Fail makes every send fail with
// application.ErrDelivery.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []SentMessage
	Fail bool
}

// Send implements application.Notifier.
func (n *RecordingNotifier) Send(_ context.Context, channel string, msg application.Message) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return "", fmt.Errorf("%w: recording notifier set to fail", application.ErrDelivery)
	}
	ref := fmt.Sprintf("msg-%d", len(n.sent)+1)
	n.sent = append(n.sent, SentMessage{Ref: ref, Channel: channel, Message: msg})
	return ref, nil
}

// Sent returns a copy of every captured message.
func (n *RecordingNotifier) Sent() []SentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentMessage(nil), n.sent...)
}

// Titled returns the captured messages whose title has the given prefix.
func (n *RecordingNotifier) Titled(prefix string) []SentMessage {
	var out []SentMessage
	for _, s := range n.Sent() {
		if strings.HasPrefix(s.Message.Title, prefix) {
			out = append(out, s)
		}
	}
	return out
}

// ScriptedInsults returns the scripted lines in order, then repeats the last
// one. With no script it echoes the subjects.
type ScriptedInsults struct {
	mu     sync.Mutex
	Lines  []string
	Err    error
	inputs []application.InsultContext
}

// Generate implements application.InsultGenerator.
func (g *ScriptedInsults) Generate(_ context.Context, input application.InsultContext) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append(g.inputs, input)
	if g.Err != nil {
		return "", fmt.Errorf("%w: %w", application.ErrGeneration, g.Err)
	}
	if len(g.Lines) == 0 {
		return strings.Join(input.SubjectNames, " ") + " is late", nil
	}
	idx := min(len(g.inputs)-1, len(g.Lines)-1)
	return g.Lines[idx], nil
}

// Inputs returns every context the generator was asked for.
func (g *ScriptedInsults) Inputs() []application.InsultContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]application.InsultContext(nil), g.inputs...)
}

// MemoryStats is an in-memory application.StatsStore. Appended deltas become
// visible in Totals only after Flush.
type MemoryStats struct {
	mu      sync.Mutex
	pending []ledger.Delta
	flushed []ledger.Delta
	flushes int
}

// Append implements application.StatsStore.
func (s *MemoryStats) Append(_ context.Context, userID string, delta ledger.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta.UserID = userID
	s.pending = append(s.pending, delta)
	return nil
}

// Flush implements application.StatsStore.
func (s *MemoryStats) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = append(s.flushed, s.pending...)
	s.pending = nil
	s.flushes++
	return nil
}

// Totals sums the flushed wasted and waiting minutes of userID.
func (s *MemoryStats) Totals(userID string) (wasted, waiting int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.flushed {
		if d.UserID == userID {
			wasted += d.WastedMinutes
			waiting += d.WaitingMinutes
		}
	}
	return wasted, waiting
}

// Deltas returns every flushed delta.
func (s *MemoryStats) Deltas() []ledger.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Delta(nil), s.flushed...)
}

// Flushes reports how many times Flush was called.
func (s *MemoryStats) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
