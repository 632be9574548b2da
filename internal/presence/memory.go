package presence

import (
	"context"
	"sync"
)

// Memory is an in-process oracle. Arrivals published while a subscriber's
// buffer is full are dropped for that subscriber; IsPresent stays accurate.
type Memory struct {
	mu          sync.Mutex
	present     map[string]map[string]struct{}
	subscribers map[string]map[chan string]struct{}
	buffer      int
}

// NewMemory constructs an empty oracle.
func NewMemory() *Memory {
	return &Memory{
		present:     make(map[string]map[string]struct{}),
		subscribers: make(map[string]map[chan string]struct{}),
		buffer:      defaultBuffer,
	}
}

// IsPresent reports whether userID is at point.
func (m *Memory) IsPresent(_ context.Context, userID, point string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.present[point][userID]
	return ok, nil
}

// MarkPresent records userID at point and notifies subscribers on first arrival.
func (m *Memory) MarkPresent(_ context.Context, userID, point string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.present[point]
	if !ok {
		users = make(map[string]struct{})
		m.present[point] = users
	}
	if _, already := users[userID]; already {
		return nil
	}
	users[userID] = struct{}{}

	for ch := range m.subscribers[point] {
		select {
		case ch <- userID:
		default:
		}
	}
	return nil
}

// MarkAbsent removes userID from point.
func (m *Memory) MarkAbsent(_ context.Context, userID, point string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.present[point], userID)
	return nil
}

// Arrivals streams users that arrive at point until ctx ends.
func (m *Memory) Arrivals(ctx context.Context, point string) (<-chan string, error) {
	ch := make(chan string, m.buffer)

	m.mu.Lock()
	subs, ok := m.subscribers[point]
	if !ok {
		subs = make(map[chan string]struct{})
		m.subscribers[point] = subs
	}
	subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subscribers[point], ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}
