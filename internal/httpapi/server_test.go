package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/config"
	"github.com/libertymesh/operator/internal/dispatch"
	"github.com/libertymesh/operator/internal/mesh"
	"github.com/libertymesh/operator/internal/restrict"
	"github.com/libertymesh/operator/internal/state"
	"github.com/libertymesh/operator/internal/triage"
	"github.com/libertymesh/operator/internal/work"
)

type fixture struct {
	srv      *httptest.Server
	store    *state.Store
	sessions *triage.Manager
	queue    *work.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tx := mesh.NewMockTransport()
	store := state.NewStore()
	sink := auditlog.NewMemorySink()
	sessions := triage.NewManager(store, sink, 12)
	resolver := dispatch.NewResolver(map[dispatch.Trigger]string{
		dispatch.TriggerFire: "firehouse",
	}, tx, store, sink)
	restrictions := restrict.NewManager(store, sink, sessions, []string{"firehouse"}, 2*time.Hour)
	queue := work.NewQueue(15)

	cfg := config.Config{QueueDepth: 15}
	api := New(cfg, store, restrictions, resolver, queue, nil)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, sessions: sessions, queue: queue}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	var body map[string]any

	getJSON(t, f.srv.URL+"/healthz", &body)
	if body["status"] != "ok" {
		t.Fatalf("healthz = %+v", body)
	}
	getJSON(t, f.srv.URL+"/readyz", &body)
	if body["status"] != "ready" {
		t.Fatalf("readyz = %+v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	f.sessions.Open("!a1b2", "Node", dispatch.TriggerFire, nil, nil, nil, "")
	f.queue.TryEnqueue(work.Item{Sender: "!a1b2", Mode: work.ModeGeneral, Text: "hi"})

	var body struct {
		QueueDepth     int      `json:"queue_depth"`
		QueueCapacity  int      `json:"queue_capacity"`
		TriageSessions int      `json:"triage_sessions"`
		Restricted     int      `json:"restricted"`
		Responders     []string `json:"responders"`
	}
	getJSON(t, f.srv.URL+"/v1/status", &body)

	if body.QueueDepth != 1 || body.QueueCapacity != 15 || body.TriageSessions != 1 {
		t.Fatalf("status = %+v", body)
	}
	if len(body.Responders) != 1 || body.Responders[0] != "firehouse" {
		t.Fatalf("responders = %v", body.Responders)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	f := newFixture(t)
	lat, lon := 40.1, -105.2
	f.sessions.Open("!a1b2", "Trailhead-3", dispatch.TriggerFire, &lat, &lon, []string{"firehouse"}, "barn fire")

	var body struct {
		Sessions []sessionView `json:"sessions"`
	}
	getJSON(t, f.srv.URL+"/v1/sessions", &body)

	if len(body.Sessions) != 1 {
		t.Fatalf("sessions = %+v", body.Sessions)
	}
	got := body.Sessions[0]
	if got.Sender != "!a1b2" || got.Trigger != "fire" || got.Exchanges != 1 {
		t.Fatalf("session = %+v", got)
	}
	if got.GPSLat == nil || *got.GPSLat != 40.1 {
		t.Fatalf("gps = %+v", got.GPSLat)
	}
}

func TestRestrictionsEndpoint(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.store.Restrict(state.RestrictionEntry{
		Sender:   "!a1b2",
		Phone:    "Trailhead-3",
		LockedBy: "firehouse",
		Expiry:   now.Add(time.Hour),
	})

	var body struct {
		Restrictions []restrictionView `json:"restrictions"`
	}
	getJSON(t, f.srv.URL+"/v1/restrictions", &body)

	if len(body.Restrictions) != 1 || body.Restrictions[0].LockedBy != "firehouse" {
		t.Fatalf("restrictions = %+v", body.Restrictions)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	f := newFixture(t)
	res, err := http.Get(f.srv.URL + "/v1/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", res.StatusCode)
	}
}
