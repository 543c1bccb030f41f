package state

import (
	"sort"
	"sync"
	"time"
)

// Store owns every mutable map the gateway shares between the router, the
// workers, and the watchdog: triage sessions, restrictions, pending menus,
// pending restriction-lift menus, last-dispatch targets, and the general chat
// windows. All access goes through one mutex; no method performs I/O or
// returns anything that aliases internal state. Callers mutate, release, then
// transmit or log.
type Store struct {
	mu sync.Mutex

	sessions     map[string]*TriageSession
	restrictions map[string]RestrictionEntry
	pendingMenus map[string]PendingMenu
	pendingLifts map[string][]string
	lastDispatch map[string]string
	conversation map[string][]ConversationTurn
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]*TriageSession),
		restrictions: make(map[string]RestrictionEntry),
		pendingMenus: make(map[string]PendingMenu),
		pendingLifts: make(map[string][]string),
		lastDispatch: make(map[string]string),
		conversation: make(map[string][]ConversationTurn),
	}
}

// --- Triage sessions ---

// PutSession installs a session for its sender, replacing any existing one.
// The return value reports whether a session was already open.
func (s *Store) PutSession(sess *TriageSession) bool {
	c := cloneSession(sess)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.sessions[c.Sender]
	s.sessions[c.Sender] = c
	return existed
}

func (s *Store) Session(sender string) (*TriageSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sender]
	if !ok {
		return nil, false
	}
	return cloneSession(sess), true
}

func (s *Store) HasSession(sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sender]
	return ok
}

// AppendExchange appends one history entry under the trim invariant and
// refreshes last-activity, in a single critical section. maxHistory bounds
// the retained entries: the first two and the most recent maxHistory-2
// survive a trim. It returns the updated session, or false if none is open.
func (s *Store) AppendExchange(sender string, ex Exchange, maxHistory int) (*TriageSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sender]
	if !ok {
		return nil, false
	}
	sess.Exchanges = append(sess.Exchanges, ex)
	sess.Exchanges = trimExchanges(sess.Exchanges, maxHistory)
	sess.LastActivity = ex.TS
	return cloneSession(sess), true
}

// RemoveSession removes and returns the sender's open session, if any.
func (s *Store) RemoveSession(sender string) (*TriageSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sender]
	if !ok {
		return nil, false
	}
	delete(s.sessions, sender)
	return sess, true
}

func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns a snapshot of all open sessions.
func (s *Store) Sessions() []*TriageSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TriageSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// StaleSessionIDs lists senders whose sessions saw no activity since cutoff.
func (s *Store) StaleSessionIDs(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for sender, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			out = append(out, sender)
		}
	}
	sort.Strings(out)
	return out
}

func trimExchanges(exchanges []Exchange, max int) []Exchange {
	if max <= 2 || len(exchanges) <= max {
		return exchanges
	}
	// Keep the anchor (original emergency description) plus the freshest tail.
	trimmed := make([]Exchange, 0, max)
	trimmed = append(trimmed, exchanges[:2]...)
	trimmed = append(trimmed, exchanges[len(exchanges)-(max-2):]...)
	return trimmed
}

// --- Restrictions ---

// Restrict installs the lockout and, in the same critical section, removes
// any open session and pending menu for the target. The removed session is
// returned so the caller can emit its close notice after releasing the lock.
func (s *Store) Restrict(entry RestrictionEntry) (*TriageSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restrictions[entry.Sender] = entry
	delete(s.pendingMenus, entry.Sender)
	sess, had := s.sessions[entry.Sender]
	if had {
		delete(s.sessions, entry.Sender)
	}
	return sess, had
}

func (s *Store) Restriction(sender string) (RestrictionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.restrictions[sender]
	return entry, ok
}

func (s *Store) RemoveRestriction(sender string) (RestrictionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.restrictions[sender]
	if !ok {
		return RestrictionEntry{}, false
	}
	delete(s.restrictions, sender)
	return entry, true
}

// ActiveRestrictions lists non-expired entries in a stable display order.
func (s *Store) ActiveRestrictions(now time.Time) []RestrictionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RestrictionEntry
	for _, entry := range s.restrictions {
		if entry.Expiry.After(now) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Sender < out[j].Sender
	})
	return out
}

// PurgeExpiredRestrictions removes and returns every entry past expiry.
func (s *Store) PurgeExpiredRestrictions(now time.Time) []RestrictionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RestrictionEntry
	for sender, entry := range s.restrictions {
		if !entry.Expiry.After(now) {
			out = append(out, entry)
			delete(s.restrictions, sender)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sender < out[j].Sender })
	return out
}

func (s *Store) RestrictionCount(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entry := range s.restrictions {
		if entry.Expiry.After(now) {
			n++
		}
	}
	return n
}

// --- Pending guided menus ---

func (s *Store) PutPendingMenu(menu PendingMenu) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingMenus[menu.Sender] = menu
}

// TakePendingMenu removes and returns the sender's pending menu, if any.
func (s *Store) TakePendingMenu(sender string) (PendingMenu, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	menu, ok := s.pendingMenus[sender]
	if !ok {
		return PendingMenu{}, false
	}
	delete(s.pendingMenus, sender)
	return menu, true
}

func (s *Store) HasPendingMenu(sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pendingMenus[sender]
	return ok
}

// TakeExpiredMenus removes and returns every menu issued before cutoff.
func (s *Store) TakeExpiredMenus(cutoff time.Time) []PendingMenu {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PendingMenu
	for sender, menu := range s.pendingMenus {
		if menu.IssuedAt.Before(cutoff) {
			out = append(out, menu)
			delete(s.pendingMenus, sender)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sender < out[j].Sender })
	return out
}

// --- Pending restriction-lift menus (per responder, ephemeral) ---

func (s *Store) PutPendingLift(responder string, senders []string) {
	ordered := make([]string, len(senders))
	copy(ordered, senders)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingLifts[responder] = ordered
}

// PendingLift returns the responder's displayed list without consuming it.
func (s *Store) PendingLift(responder string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered, ok := s.pendingLifts[responder]
	if !ok {
		return nil, false
	}
	out := make([]string, len(ordered))
	copy(out, ordered)
	return out, true
}

// TakePendingLift removes and returns the responder's displayed list.
func (s *Store) TakePendingLift(responder string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered, ok := s.pendingLifts[responder]
	if !ok {
		return nil, false
	}
	delete(s.pendingLifts, responder)
	return ordered, true
}

func (s *Store) ClearPendingLift(responder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingLifts, responder)
}

// --- Last dispatch targets ---

func (s *Store) SetLastDispatch(responder, sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDispatch[responder] = sender
}

func (s *Store) LastDispatch(responder string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sender, ok := s.lastDispatch[responder]
	return sender, ok
}

// --- General conversation windows ---

// AppendConversation appends a turn to the sender's rolling chat window,
// evicting the oldest turns beyond maxTurns, and returns the window.
func (s *Store) AppendConversation(sender string, turn ConversationTurn, maxTurns int) []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := append(s.conversation[sender], turn)
	if maxTurns > 0 && len(window) > maxTurns {
		window = window[len(window)-maxTurns:]
	}
	s.conversation[sender] = window
	out := make([]ConversationTurn, len(window))
	copy(out, window)
	return out
}

func (s *Store) Conversation(sender string) []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.conversation[sender]
	out := make([]ConversationTurn, len(window))
	copy(out, window)
	return out
}

func cloneSession(sess *TriageSession) *TriageSession {
	c := *sess
	c.DispatchedTo = append([]string(nil), sess.DispatchedTo...)
	c.Exchanges = append([]Exchange(nil), sess.Exchanges...)
	return &c
}
