package application

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultHistoryLimit bounds how many ended harassment sessions are retained.
const DefaultHistoryLimit = 100

// Registry owns the live appointments and harassment sessions of one process.
// The scheduler, the presence listeners and the HTTP gateway share a single
// instance by reference; tests build their own.
type Registry struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
	sessions     map[string]*HarassmentSession
	history      []*HarassmentSession
	historyLimit int
}

// NewRegistry constructs an empty registry. A non-positive historyLimit falls
// back to DefaultHistoryLimit.
func NewRegistry(historyLimit int) *Registry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Registry{
		appointments: make(map[string]*Appointment),
		sessions:     make(map[string]*HarassmentSession),
		historyLimit: historyLimit,
	}
}

func (r *Registry) addAppointment(a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.appointments[a.id]; exists {
		return fmt.Errorf("appointment %s already registered", a.id)
	}
	r.appointments[a.id] = a
	return nil
}

// Appointment returns the live appointment with the given id.
func (r *Registry) Appointment(id string) (*Appointment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	return a, ok
}

// Appointments returns the live appointments ordered by scheduled time.
func (r *Registry) Appointments() []*Appointment {
	r.mu.RLock()
	list := make([]*Appointment, 0, len(r.appointments))
	for _, a := range r.appointments {
		list = append(list, a)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].scheduledAt.Equal(list[j].scheduledAt) {
			return list[i].id < list[j].id
		}
		return list[i].scheduledAt.Before(list[j].scheduledAt)
	})
	return list
}

// removeAppointment drops a from the live set. A different handle registered
// under the same id is left alone.
func (r *Registry) removeAppointment(a *Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.appointments[a.id]; ok && current == a {
		delete(r.appointments, a.id)
	}
}

// startSession registers s unless its target already has an active session.
func (r *Registry) startSession(s *HarassmentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.target]; exists {
		return ErrAlreadyActive
	}
	r.sessions[s.target] = s
	return nil
}

// Session returns the active harassment session for target.
func (r *Registry) Session(target string) (*HarassmentSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[target]
	return s, ok
}

// Sessions returns the active harassment sessions ordered by start time.
func (r *Registry) Sessions() []*HarassmentSession {
	r.mu.RLock()
	list := make([]*HarassmentSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sortSessions(list)
	return list
}

// History returns ended sessions, oldest first.
func (r *Registry) History() []*HarassmentSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*HarassmentSession, len(r.history))
	copy(out, r.history)
	return out
}

// endSession moves s from the active set into the bounded history.
func (r *Registry) endSession(s *HarassmentSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[s.target]
	if !ok || current != s {
		return
	}
	delete(r.sessions, s.target)
	r.history = append(r.history, s)
	if overflow := len(r.history) - r.historyLimit; overflow > 0 {
		r.history = append([]*HarassmentSession(nil), r.history[overflow:]...)
	}
}

func sortSessions(list []*HarassmentSession) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].startedAt.Equal(list[j].startedAt) {
			return list[i].target < list[j].target
		}
		return list[i].startedAt.Before(list[j].startedAt)
	})
}
