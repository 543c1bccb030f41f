package watchdog

import (
	"context"
	"log"
	"time"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/dispatch"
	"github.com/libertymesh/operator/internal/mesh"
	"github.com/libertymesh/operator/internal/observability"
	"github.com/libertymesh/operator/internal/state"
	"github.com/libertymesh/operator/internal/triage"
)

const (
	replyTriageTimedOut = "[SYSTEM] Triage session timed out. Send !911 or !help if you need assistance."
	replyRestored       = "[SYSTEM] Your access has been restored. Send !911 or !help if you need assistance."
)

// Watchdog periodically reclaims state the router cannot: silent triage
// sessions, guided menus that never got an answer, and restrictions past
// expiry. Each sweep mutates the store first and transmits notices after, so
// the state lock is never held across radio I/O.
type Watchdog struct {
	store    *state.Store
	sessions *triage.Manager
	resolver *dispatch.Resolver
	tx       mesh.Sender
	dir      mesh.Directory
	sink     auditlog.Sink
	metrics  *observability.Metrics

	interval      time.Duration
	triageTimeout time.Duration
	menuTimeout   time.Duration
}

type Config struct {
	Interval      time.Duration
	TriageTimeout time.Duration
	MenuTimeout   time.Duration
}

func New(store *state.Store, sessions *triage.Manager, resolver *dispatch.Resolver, tx mesh.Sender, dir mesh.Directory, sink auditlog.Sink, metrics *observability.Metrics, cfg Config) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.TriageTimeout <= 0 {
		cfg.TriageTimeout = 10 * time.Minute
	}
	if cfg.MenuTimeout <= 0 {
		cfg.MenuTimeout = 2 * time.Minute
	}
	return &Watchdog{
		store:         store,
		sessions:      sessions,
		resolver:      resolver,
		tx:            tx,
		dir:           dir,
		sink:          sink,
		metrics:       metrics,
		interval:      cfg.Interval,
		triageTimeout: cfg.TriageTimeout,
		menuTimeout:   cfg.MenuTimeout,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(time.Now())
		}
	}
}

// Sweep runs one pass over all timed state. Exported so tests can drive it
// with a chosen clock instead of waiting on the ticker.
func (w *Watchdog) Sweep(now time.Time) {
	w.sweepSessions(now)
	w.sweepMenus(now)
	w.sweepRestrictions(now)

	w.metrics.SetActiveSessions(w.store.SessionCount())
	w.metrics.SetActiveRestricted(w.store.RestrictionCount(now))
}

func (w *Watchdog) sweepSessions(now time.Time) {
	cutoff := now.Add(-w.triageTimeout)
	for _, sender := range w.store.StaleSessionIDs(cutoff) {
		sess, ok := w.sessions.Close(sender, triage.ReasonTimeout)
		if !ok {
			continue
		}
		log.Printf("watchdog: triage for %s timed out after %s silence", sess.Phone, w.triageTimeout)
		w.tx.Send(sender, replyTriageTimedOut)
		w.resolver.NotifyTimeout(sess, w.triageTimeout)
	}
}

func (w *Watchdog) sweepMenus(now time.Time) {
	cutoff := now.Add(-w.menuTimeout)
	for _, menu := range w.store.TakeExpiredMenus(cutoff) {
		phone := w.dir.NameOf(menu.Sender)
		log.Printf("watchdog: 911 menu for %s unanswered, escalating", phone)
		w.resolver.EscalateNoResponse(menu, phone)
	}
}

func (w *Watchdog) sweepRestrictions(now time.Time) {
	for _, entry := range w.store.PurgeExpiredRestrictions(now) {
		_ = w.sink.Append(auditlog.Event{
			Type:   auditlog.TypeRestrictionExpire,
			Sender: entry.Sender,
			Phone:  entry.Phone,
		})
		w.tx.Send(entry.Sender, replyRestored)
	}
}
