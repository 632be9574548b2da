package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/chronopact/internal/ledger"
)

var errStub = errors.New("stub failure")

type sentMessage struct {
	channel string
	msg     Message
}

type notifierStub struct {
	mu      sync.Mutex
	sent    []sentMessage
	counter int
	failAll bool
	// failOn fails sends whose content contains the given mention.
	failOn string
}

func (n *notifierStub) Send(ctx context.Context, channel string, msg Message) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll {
		return "", errStub
	}
	for _, m := range msg.Mentions {
		if n.failOn != "" && m == n.failOn {
			return "", errStub
		}
	}
	n.counter++
	n.sent = append(n.sent, sentMessage{channel: channel, msg: msg})
	return fmt.Sprintf("msg-%d", n.counter), nil
}

func (n *notifierStub) titled(title string) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Message
	for _, s := range n.sent {
		if s.msg.Title == title {
			out = append(out, s.msg)
		}
	}
	return out
}

func (n *notifierStub) untitled() []Message {
	return n.titled("")
}

type presenceStub struct {
	mu      sync.Mutex
	present map[string]bool
	fail    map[string]bool
	calls   int
}

func newPresenceStub() *presenceStub {
	return &presenceStub{present: map[string]bool{}, fail: map[string]bool{}}
}

func (p *presenceStub) set(userID string, present bool) {
	p.mu.Lock()
	p.present[userID] = present
	p.mu.Unlock()
}

func (p *presenceStub) IsPresent(ctx context.Context, userID, point string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail[userID] {
		return false, errStub
	}
	return p.present[userID], nil
}

func (p *presenceStub) Arrivals(ctx context.Context, point string) (<-chan string, error) {
	return nil, errors.New("not supported")
}

type insultStub struct {
	mu     sync.Mutex
	inputs []InsultContext
	err    error
}

func (i *insultStub) Generate(ctx context.Context, input InsultContext) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.inputs = append(i.inputs, input)
	if i.err != nil {
		return "", i.err
	}
	return "hurry up", nil
}

type statsStub struct {
	mu      sync.Mutex
	deltas  []ledger.Delta
	flushes int
	err     error
}

func (s *statsStub) Append(ctx context.Context, userID string, d ledger.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deltas = append(s.deltas, d)
	return nil
}

func (s *statsStub) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.err
}

func (s *statsStub) byUser() map[string]ledger.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ledger.Delta, len(s.deltas))
	for _, d := range s.deltas {
		out[d.UserID] = d
	}
	return out
}

type metricsStub struct {
	mu          sync.Mutex
	transitions map[string]int
	failures    map[string]int
}

func newMetricsStub() *metricsStub {
	return &metricsStub{transitions: map[string]int{}, failures: map[string]int{}}
}

func (m *metricsStub) ObserveTransition(kind string) {
	m.mu.Lock()
	m.transitions[kind]++
	m.mu.Unlock()
}

func (m *metricsStub) ObserveCollaboratorFailure(c string) {
	m.mu.Lock()
	m.failures[c]++
	m.mu.Unlock()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type appointmentHarness struct {
	clock    *testClock
	registry *Registry
	notifier *notifierStub
	presence *presenceStub
	insults  *insultStub
	stats    *statsStub
	metrics  *metricsStub
	service  *AppointmentService
}

var harnessStart = time.Date(2024, time.June, 1, 19, 0, 0, 0, time.UTC)

func newAppointmentHarness() *appointmentHarness {
	h := &appointmentHarness{
		clock:    &testClock{now: harnessStart},
		registry: NewRegistry(0),
		notifier: &notifierStub{},
		presence: newPresenceStub(),
		insults:  &insultStub{},
		stats:    &statsStub{},
		metrics:  newMetricsStub(),
	}
	ids := 0
	h.service = NewAppointmentService(AppointmentServiceDeps{
		Registry: h.registry,
		Notifier: h.notifier,
		Presence: h.presence,
		Insults:  h.insults,
		Stats:    h.stats,
		Metrics:  h.metrics,
		IDGenerator: func() string {
			ids++
			return fmt.Sprintf("gen-%d", ids)
		},
		Now: h.clock.Now,
	})
	return h
}
