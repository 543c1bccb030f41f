package restrict

import (
	"time"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/state"
	"github.com/libertymesh/operator/internal/triage"
)

// Manager owns the lockout lifecycle: apply, list, lift, and the lazy expiry
// backstop. The watchdog performs the primary expiry sweep.
type Manager struct {
	store      *state.Store
	sink       auditlog.Sink
	sessions   *triage.Manager
	responders map[string]bool
	duration   time.Duration
}

func NewManager(store *state.Store, sink auditlog.Sink, sessions *triage.Manager, responders []string, duration time.Duration) *Manager {
	if duration <= 0 {
		duration = 120 * time.Minute
	}
	set := make(map[string]bool, len(responders))
	for _, id := range responders {
		set[id] = true
	}
	return &Manager{store: store, sink: sink, sessions: sessions, responders: set, duration: duration}
}

// Duration reports the configured lockout length.
func (m *Manager) Duration() time.Duration { return m.duration }

// IsAuthorizedResponder reports whether the sender is a configured responder
// node. Callers drop unauthorized responder commands silently.
func (m *Manager) IsAuthorizedResponder(sender string) bool {
	return m.responders[sender]
}

// IsRestricted reports whether an active lockout covers the sender. A query
// that crosses the expiry purges the entry and logs it, as a correctness
// backstop for the watchdog sweep.
func (m *Manager) IsRestricted(sender string) bool {
	entry, ok := m.store.Restriction(sender)
	if !ok {
		return false
	}
	if entry.Expiry.After(time.Now()) {
		return true
	}
	if expired, ok := m.store.RemoveRestriction(sender); ok {
		_ = m.sink.Append(auditlog.Event{
			Type:   auditlog.TypeRestrictionExpire,
			Sender: expired.Sender,
			Phone:  expired.Phone,
		})
	}
	return false
}

// Restrict locks the target out for the configured duration, force-closing
// any open triage session. It reports whether a session was closed so the
// responder can be told.
func (m *Manager) Restrict(target, phone, byResponder string) (sessionClosed bool) {
	_, sessionClosed = m.sessions.Close(target, triage.ReasonRestricted)

	now := time.Now().UTC()
	m.store.Restrict(state.RestrictionEntry{
		Sender:    target,
		Phone:     phone,
		LockedBy:  byResponder,
		CreatedAt: now,
		Expiry:    now.Add(m.duration),
	})

	_ = m.sink.Append(auditlog.Event{
		Type:            auditlog.TypeRestricted,
		Sender:          target,
		Phone:           phone,
		DurationMinutes: int(m.duration.Minutes()),
		LockedBy:        byResponder,
	})
	return sessionClosed
}

// Active lists current restrictions in display order.
func (m *Manager) Active() []state.RestrictionEntry {
	return m.store.ActiveRestrictions(time.Now())
}

// Lift removes the target's restriction on a responder's selection.
func (m *Manager) Lift(target, byResponder string) (state.RestrictionEntry, bool) {
	entry, ok := m.store.RemoveRestriction(target)
	if !ok {
		return state.RestrictionEntry{}, false
	}
	_ = m.sink.Append(auditlog.Event{
		Type:     auditlog.TypeRestrictionLifted,
		Sender:   entry.Sender,
		Phone:    entry.Phone,
		LiftedBy: byResponder,
	})
	return entry, true
}
