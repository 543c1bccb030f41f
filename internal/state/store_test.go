package state

import (
	"testing"
	"time"
)

func newSession(sender string, started time.Time) *TriageSession {
	return &TriageSession{
		Sender:       sender,
		Phone:        "Node-" + sender,
		Trigger:      "fire",
		StartedAt:    started,
		LastActivity: started,
	}
}

func TestPutSessionReportsReplacement(t *testing.T) {
	s := NewStore()
	now := time.Now()

	if replaced := s.PutSession(newSession("a", now)); replaced {
		t.Fatalf("first put reported replacement")
	}
	if replaced := s.PutSession(newSession("a", now)); !replaced {
		t.Fatalf("second put did not report replacement")
	}
	if s.SessionCount() != 1 {
		t.Fatalf("expected 1 session, got %d", s.SessionCount())
	}
}

func TestSessionReturnsClone(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.PutSession(&TriageSession{
		Sender:       "a",
		DispatchedTo: []string{"r1"},
		StartedAt:    now,
		LastActivity: now,
	})

	got, ok := s.Session("a")
	if !ok {
		t.Fatalf("session missing")
	}
	got.DispatchedTo[0] = "mutated"
	got.Phone = "mutated"

	again, _ := s.Session("a")
	if again.DispatchedTo[0] != "r1" || again.Phone != "" {
		t.Fatalf("store state aliased by returned session")
	}
}

func TestAppendExchangeTrimsKeepingAnchor(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.PutSession(newSession("a", now))

	const max = 12
	for i := 0; i < 20; i++ {
		ex := Exchange{TS: now.Add(time.Duration(i) * time.Second), Role: RoleCitizen, Text: text(i)}
		if _, ok := s.AppendExchange("a", ex, max); !ok {
			t.Fatalf("append %d failed", i)
		}
	}

	sess, _ := s.Session("a")
	if len(sess.Exchanges) != max {
		t.Fatalf("expected %d exchanges, got %d", max, len(sess.Exchanges))
	}
	// First two survive as the anchor.
	if sess.Exchanges[0].Text != text(0) || sess.Exchanges[1].Text != text(1) {
		t.Fatalf("anchor lost: %q %q", sess.Exchanges[0].Text, sess.Exchanges[1].Text)
	}
	// The remainder is the freshest tail.
	if sess.Exchanges[2].Text != text(10) || sess.Exchanges[max-1].Text != text(19) {
		t.Fatalf("tail wrong: %q .. %q", sess.Exchanges[2].Text, sess.Exchanges[max-1].Text)
	}
}

func text(i int) string {
	return string(rune('a' + i))
}

func TestAppendExchangeRefreshesActivity(t *testing.T) {
	s := NewStore()
	started := time.Now().Add(-time.Hour)
	s.PutSession(newSession("a", started))

	ts := time.Now()
	sess, ok := s.AppendExchange("a", Exchange{TS: ts, Role: RoleCitizen, Text: "hi"}, 12)
	if !ok {
		t.Fatalf("append failed")
	}
	if !sess.LastActivity.Equal(ts) {
		t.Fatalf("last activity not refreshed: %v", sess.LastActivity)
	}
}

func TestAppendExchangeWithoutSession(t *testing.T) {
	s := NewStore()
	if _, ok := s.AppendExchange("ghost", Exchange{Text: "hi"}, 12); ok {
		t.Fatalf("append succeeded with no session")
	}
}

func TestStaleSessionIDs(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.PutSession(newSession("old", now.Add(-20*time.Minute)))
	s.PutSession(newSession("fresh", now))

	stale := s.StaleSessionIDs(now.Add(-10 * time.Minute))
	if len(stale) != 1 || stale[0] != "old" {
		t.Fatalf("stale = %v", stale)
	}
}

func TestRestrictRemovesSessionAndMenu(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.PutSession(newSession("a", now))
	s.PutPendingMenu(PendingMenu{Sender: "a", IssuedAt: now})

	sess, had := s.Restrict(RestrictionEntry{Sender: "a", Expiry: now.Add(time.Hour)})
	if !had || sess == nil {
		t.Fatalf("restrict did not return removed session")
	}
	if s.HasSession("a") || s.HasPendingMenu("a") {
		t.Fatalf("restrict left session or menu behind")
	}
	if _, ok := s.Restriction("a"); !ok {
		t.Fatalf("restriction not installed")
	}
}

func TestActiveRestrictionsOrderAndExpiry(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Restrict(RestrictionEntry{Sender: "b", CreatedAt: now.Add(-time.Minute), Expiry: now.Add(time.Hour)})
	s.Restrict(RestrictionEntry{Sender: "a", CreatedAt: now.Add(-2 * time.Minute), Expiry: now.Add(time.Hour)})
	s.Restrict(RestrictionEntry{Sender: "gone", CreatedAt: now.Add(-3 * time.Hour), Expiry: now.Add(-time.Hour)})

	active := s.ActiveRestrictions(now)
	if len(active) != 2 || active[0].Sender != "a" || active[1].Sender != "b" {
		t.Fatalf("active = %+v", active)
	}

	purged := s.PurgeExpiredRestrictions(now)
	if len(purged) != 1 || purged[0].Sender != "gone" {
		t.Fatalf("purged = %+v", purged)
	}
	if s.RestrictionCount(now) != 2 {
		t.Fatalf("count = %d", s.RestrictionCount(now))
	}
}

func TestTakePendingMenu(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.PutPendingMenu(PendingMenu{Sender: "a", IssuedAt: now})

	if _, ok := s.TakePendingMenu("a"); !ok {
		t.Fatalf("take failed")
	}
	if _, ok := s.TakePendingMenu("a"); ok {
		t.Fatalf("second take succeeded")
	}
}

func TestTakeExpiredMenus(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.PutPendingMenu(PendingMenu{Sender: "stale", IssuedAt: now.Add(-3 * time.Minute)})
	s.PutPendingMenu(PendingMenu{Sender: "fresh", IssuedAt: now})

	expired := s.TakeExpiredMenus(now.Add(-2 * time.Minute))
	if len(expired) != 1 || expired[0].Sender != "stale" {
		t.Fatalf("expired = %+v", expired)
	}
	if !s.HasPendingMenu("fresh") {
		t.Fatalf("fresh menu consumed")
	}
}

func TestPendingLiftLifecycle(t *testing.T) {
	s := NewStore()
	s.PutPendingLift("resp", []string{"a", "b"})

	got, ok := s.PendingLift("resp")
	if !ok || len(got) != 2 {
		t.Fatalf("peek = %v %v", got, ok)
	}
	// Peek does not consume.
	if _, ok := s.PendingLift("resp"); !ok {
		t.Fatalf("peek consumed the list")
	}

	taken, ok := s.TakePendingLift("resp")
	if !ok || taken[1] != "b" {
		t.Fatalf("take = %v %v", taken, ok)
	}
	if _, ok := s.PendingLift("resp"); ok {
		t.Fatalf("take left list behind")
	}

	s.PutPendingLift("resp", []string{"a"})
	s.ClearPendingLift("resp")
	if _, ok := s.PendingLift("resp"); ok {
		t.Fatalf("clear left list behind")
	}
}

func TestLastDispatch(t *testing.T) {
	s := NewStore()
	s.SetLastDispatch("resp", "citizen1")
	s.SetLastDispatch("resp", "citizen2")

	got, ok := s.LastDispatch("resp")
	if !ok || got != "citizen2" {
		t.Fatalf("last dispatch = %q %v", got, ok)
	}
	if _, ok := s.LastDispatch("other"); ok {
		t.Fatalf("unexpected mapping")
	}
}

func TestAppendConversationWindow(t *testing.T) {
	s := NewStore()
	for i := 0; i < 6; i++ {
		s.AppendConversation("a", ConversationTurn{Role: RoleCitizen, Text: text(i)}, 4)
	}
	window := s.Conversation("a")
	if len(window) != 4 {
		t.Fatalf("window = %d", len(window))
	}
	if window[0].Text != text(2) || window[3].Text != text(5) {
		t.Fatalf("window contents wrong: %+v", window)
	}
}
