package dispatch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/mesh"
	"github.com/libertymesh/operator/internal/state"
)

const contextPreviewLimit = 80

// Resolver maps triggers to responder targets and formats every
// responder-facing notice: dispatch, cancellation, timeout, and the guided
// menu's no-response escalation. Both the direct-flag flow and the menu flow
// converge on Dispatch.
type Resolver struct {
	assigned map[Trigger]string
	all      []string

	tx    mesh.Sender
	store *state.Store
	sink  auditlog.Sink
}

// NewResolver builds a resolver from the static trigger assignment table.
// Triggers without an assignment (help, sos, and unassigned categories)
// resolve to every configured responder.
func NewResolver(assignments map[Trigger]string, tx mesh.Sender, store *state.Store, sink auditlog.Sink) *Resolver {
	assigned := make(map[Trigger]string, len(assignments))
	var all []string
	seen := make(map[string]bool)
	for _, t := range directTriggers {
		id := strings.TrimSpace(assignments[t])
		if id == "" {
			continue
		}
		assigned[t] = id
		if !seen[id] {
			seen[id] = true
			all = append(all, id)
		}
	}
	return &Resolver{assigned: assigned, all: all, tx: tx, store: store, sink: sink}
}

// Targets resolves a trigger to the concrete responder set at call time.
// Empty means no responders are configured at all.
func (r *Resolver) Targets(trigger Trigger) []string {
	if id, ok := r.assigned[trigger]; ok {
		return []string{id}
	}
	return append([]string(nil), r.all...)
}

// Responders returns every configured responder node id.
func (r *Resolver) Responders() []string {
	return append([]string(nil), r.all...)
}

func (r *Resolver) IsResponder(id string) bool {
	for _, resp := range r.all {
		if resp == id {
			return true
		}
	}
	return false
}

// Dispatch formats and transmits the emergency notice to each resolved
// target, records the last-dispatch mapping used by responder lockout
// commands, and logs the dispatch. The returned target set is what the
// caller must store on the session: cancellation reuses it verbatim.
func (r *Resolver) Dispatch(sender, phone string, trigger Trigger, gpsLat, gpsLon *float64, context string) []string {
	now := time.Now()
	notice := fmt.Sprintf("[DISPATCH] %s | From: %s | %s | Time: %s",
		trigger.Upper(), phone, GPSString(gpsLat, gpsLon), now.Format("15:04:05"))
	if preview := previewContext(context); preview != "" {
		notice += " | " + preview
	}

	targets := r.Targets(trigger)
	if len(targets) == 0 {
		// No responders configured: the whole channel is the responder.
		r.tx.Send(mesh.Broadcast, notice)
	}
	for _, target := range targets {
		r.tx.Send(target, notice)
		r.store.SetLastDispatch(target, sender)
	}

	_ = r.sink.Append(auditlog.Event{
		Type:     auditlog.TypeSOSDispatch,
		Sender:   sender,
		Phone:    phone,
		Trigger:  string(trigger),
		Context:  context,
		GPSLat:   gpsLat,
		GPSLon:   gpsLon,
		RoutedTo: r.routedTo(trigger),
	})

	return targets
}

// Cancel notifies the originally dispatched targets that the citizen marked
// themselves safe. The session's stored target set is used, never a fresh
// resolution, so a configuration change mid-incident cannot strand a
// responder who was already dispatched.
func (r *Resolver) Cancel(sess *state.TriageSession) {
	notice := fmt.Sprintf("[CANCELLED] %s from %s marked SAFE by sender. Use your judgment.",
		Trigger(sess.Trigger).Upper(), sess.Phone)
	r.sendToSessionTargets(sess, notice)
}

// NotifyTimeout tells the session's original targets that triage went silent.
func (r *Resolver) NotifyTimeout(sess *state.TriageSession, silence time.Duration) {
	notice := fmt.Sprintf("[TIMEOUT] %s triage from %s closed after %dmin silence.",
		Trigger(sess.Trigger).Upper(), sess.Phone, int(silence.Minutes()))
	r.sendToSessionTargets(sess, notice)
}

// EscalateNoResponse broadcasts the possible-incapacitation alert when a
// guided menu goes unanswered, and points each responder's lockout command
// at the unresponsive sender.
func (r *Resolver) EscalateNoResponse(menu state.PendingMenu, phone string) {
	alert := fmt.Sprintf("[DISPATCH] !911 NO RESPONSE | From: %s | %s | Citizen triggered 911 but did not respond. Possible incapacitation.",
		phone, GPSString(menu.GPSLat, menu.GPSLon))

	if len(r.all) == 0 {
		r.tx.Send(mesh.Broadcast, alert)
	}
	for _, target := range r.all {
		r.tx.Send(target, alert)
		r.store.SetLastDispatch(target, menu.Sender)
	}

	_ = r.sink.Append(auditlog.Event{
		Type:   auditlog.TypeSOS911NoResponse,
		Sender: menu.Sender,
		Phone:  phone,
		GPSLat: menu.GPSLat,
		GPSLon: menu.GPSLon,
	})
}

func (r *Resolver) sendToSessionTargets(sess *state.TriageSession, text string) {
	if len(sess.DispatchedTo) == 0 {
		r.tx.Send(mesh.Broadcast, text)
		return
	}
	for _, target := range sess.DispatchedTo {
		r.tx.Send(target, text)
	}
}

func (r *Resolver) routedTo(trigger Trigger) string {
	if id, ok := r.assigned[trigger]; ok {
		return id
	}
	return "ALL_RESPONDERS"
}

func previewContext(context string) string {
	context = strings.TrimSpace(context)
	if len(context) > contextPreviewLimit {
		return context[:contextPreviewLimit]
	}
	return context
}

// GPSString renders a nullable coordinate pair for notices, rounded to five
// decimal places the way the node database reports positions.
func GPSString(lat, lon *float64) string {
	if lat == nil || lon == nil {
		return "GPS: UNKNOWN"
	}
	return "GPS: " + formatCoord(*lat) + "," + formatCoord(*lon)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e5)/1e5, 'f', -1, 64)
}
