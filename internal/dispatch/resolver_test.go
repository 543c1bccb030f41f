package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/mesh"
	"github.com/libertymesh/operator/internal/state"
)

func newResolver(assignments map[Trigger]string) (*Resolver, *mesh.MockTransport, *auditlog.MemorySink, *state.Store) {
	tx := mesh.NewMockTransport()
	sink := auditlog.NewMemorySink()
	store := state.NewStore()
	return NewResolver(assignments, tx, store, sink), tx, sink, store
}

func TestTargetsAssignedAndFallback(t *testing.T) {
	r, _, _, _ := newResolver(map[Trigger]string{
		TriggerPolice: "sheriff",
		TriggerFire:   "firehouse",
		TriggerEMS:    "firehouse",
	})

	if got := r.Targets(TriggerPolice); len(got) != 1 || got[0] != "sheriff" {
		t.Fatalf("police targets = %v", got)
	}
	// Unassigned categories go to every responder, deduplicated.
	if got := r.Targets(TriggerHelp); len(got) != 2 || got[0] != "sheriff" || got[1] != "firehouse" {
		t.Fatalf("help targets = %v", got)
	}
	if !r.IsResponder("firehouse") || r.IsResponder("random") {
		t.Fatalf("responder membership wrong")
	}
}

func TestDispatchSendsNoticeAndRecordsLastDispatch(t *testing.T) {
	r, tx, sink, store := newResolver(map[Trigger]string{TriggerFire: "firehouse"})
	lat, lon := 40.1, -105.2

	targets := r.Dispatch("!a1b2", "Trailhead-3", TriggerFire, &lat, &lon, "barn fire spreading")
	if len(targets) != 1 || targets[0] != "firehouse" {
		t.Fatalf("targets = %v", targets)
	}

	sent := tx.SentTo("firehouse")
	if len(sent) != 1 {
		t.Fatalf("sent = %+v", tx.SentMessages())
	}
	notice := sent[0].Text
	for _, want := range []string{"[DISPATCH] FIRE", "From: Trailhead-3", "GPS: 40.1,-105.2", "barn fire spreading"} {
		if !strings.Contains(notice, want) {
			t.Errorf("notice %q missing %q", notice, want)
		}
	}

	if target, ok := store.LastDispatch("firehouse"); !ok || target != "!a1b2" {
		t.Fatalf("last dispatch = %q %v", target, ok)
	}

	events := sink.ByType(auditlog.TypeSOSDispatch)
	if len(events) != 1 || events[0].RoutedTo != "firehouse" {
		t.Fatalf("dispatch events = %+v", events)
	}
}

func TestDispatchBroadcastsWithoutResponders(t *testing.T) {
	r, tx, sink, _ := newResolver(nil)

	targets := r.Dispatch("!a1b2", "Node", TriggerSOS, nil, nil, "")
	if len(targets) != 0 {
		t.Fatalf("targets = %v", targets)
	}
	sent := tx.SentTo(mesh.Broadcast)
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "GPS: UNKNOWN") {
		t.Fatalf("broadcast = %+v", sent)
	}
	if events := sink.ByType(auditlog.TypeSOSDispatch); len(events) != 1 || events[0].RoutedTo != "ALL_RESPONDERS" {
		t.Fatalf("events = %+v", sink.Events())
	}
}

func TestDispatchTruncatesLongContext(t *testing.T) {
	r, tx, _, _ := newResolver(map[Trigger]string{TriggerFire: "firehouse"})
	long := strings.Repeat("x", 200)

	r.Dispatch("!a1b2", "Node", TriggerFire, nil, nil, long)

	notice := tx.SentTo("firehouse")[0].Text
	if strings.Contains(notice, long) {
		t.Fatalf("context not truncated")
	}
	if !strings.Contains(notice, strings.Repeat("x", 80)) {
		t.Fatalf("truncated preview missing")
	}
}

func TestCancelUsesOriginalTargets(t *testing.T) {
	// The resolver's assignment table says fire goes to the new firehouse,
	// but the session was dispatched to the old one. Cancellation must reach
	// whoever was actually dispatched.
	r, tx, _, _ := newResolver(map[Trigger]string{TriggerFire: "new-firehouse"})

	r.Cancel(&state.TriageSession{
		Sender:       "!a1b2",
		Phone:        "Node",
		Trigger:      "fire",
		DispatchedTo: []string{"old-firehouse"},
	})

	if len(tx.SentTo("new-firehouse")) != 0 {
		t.Fatalf("cancel resolved targets fresh")
	}
	sent := tx.SentTo("old-firehouse")
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "[CANCELLED] FIRE from Node marked SAFE by sender.") {
		t.Fatalf("cancel = %+v", sent)
	}
}

func TestCancelBroadcastsWhenSessionHadNoTargets(t *testing.T) {
	r, tx, _, _ := newResolver(nil)
	r.Cancel(&state.TriageSession{Sender: "!a1b2", Phone: "Node", Trigger: "sos"})
	if len(tx.SentTo(mesh.Broadcast)) != 1 {
		t.Fatalf("cancel did not broadcast: %+v", tx.SentMessages())
	}
}

func TestNotifyTimeout(t *testing.T) {
	r, tx, _, _ := newResolver(nil)
	r.NotifyTimeout(&state.TriageSession{
		Phone:        "Node",
		Trigger:      "ems",
		DispatchedTo: []string{"medic"},
	}, 10*time.Minute)

	sent := tx.SentTo("medic")
	if len(sent) != 1 || sent[0].Text != "[TIMEOUT] EMS triage from Node closed after 10min silence." {
		t.Fatalf("timeout notice = %+v", sent)
	}
}

func TestEscalateNoResponse(t *testing.T) {
	r, tx, sink, store := newResolver(map[Trigger]string{TriggerPolice: "sheriff"})
	lat, lon := 40.0, -105.0

	r.EscalateNoResponse(state.PendingMenu{Sender: "!a1b2", GPSLat: &lat, GPSLon: &lon}, "Node")

	sent := tx.SentTo("sheriff")
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "!911 NO RESPONSE") {
		t.Fatalf("escalation = %+v", sent)
	}
	if !strings.Contains(sent[0].Text, "Possible incapacitation.") {
		t.Fatalf("escalation text = %q", sent[0].Text)
	}
	// Lockout command now points at the unresponsive sender.
	if target, ok := store.LastDispatch("sheriff"); !ok || target != "!a1b2" {
		t.Fatalf("last dispatch = %q %v", target, ok)
	}
	if len(sink.ByType(auditlog.TypeSOS911NoResponse)) != 1 {
		t.Fatalf("no escalation event")
	}
}
