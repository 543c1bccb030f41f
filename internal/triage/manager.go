package triage

import (
	"fmt"
	"strings"
	"time"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/dispatch"
	"github.com/libertymesh/operator/internal/state"
)

// CloseReason records why a triage session ended.
type CloseReason string

const (
	ReasonSafe       CloseReason = "safe"
	ReasonTimeout    CloseReason = "timeout"
	ReasonRestricted CloseReason = "restricted"
	ReasonShutdown   CloseReason = "shutdown"
)

// SafeFooter is stamped onto every operator reply in an open session so the
// exit command stays visible regardless of what the model produced.
const SafeFooter = "[Send !safe when emergency is resolved]"

// Manager owns the triage session lifecycle: opening on dispatch, recording
// exchanges under the trim invariant, rendering the inference context, and
// closing with an audited reason.
type Manager struct {
	store      *state.Store
	sink       auditlog.Sink
	maxHistory int
}

func NewManager(store *state.Store, sink auditlog.Sink, maxHistory int) *Manager {
	if maxHistory <= 2 {
		maxHistory = 12
	}
	return &Manager{store: store, sink: sink, maxHistory: maxHistory}
}

// Open creates a session for the sender. A stale session left open for the
// same sender is replaced rather than treated as fatal; the replacement is
// recorded so the gap is auditable.
func (m *Manager) Open(sender, phone string, trigger dispatch.Trigger, gpsLat, gpsLon *float64, targets []string, context string) *state.TriageSession {
	now := time.Now().UTC()
	sess := &state.TriageSession{
		Sender:       sender,
		Phone:        phone,
		Trigger:      string(trigger),
		Context:      context,
		GPSLat:       gpsLat,
		GPSLon:       gpsLon,
		DispatchedTo: targets,
		StartedAt:    now,
		LastActivity: now,
	}
	if strings.TrimSpace(context) != "" {
		sess.Exchanges = []state.Exchange{{TS: now, Role: state.RoleCitizen, Text: context}}
	}

	if replaced := m.store.PutSession(sess); replaced {
		_ = m.sink.Append(auditlog.Event{
			Type:        auditlog.TypeSystem,
			SystemEvent: "session_replaced",
			Sender:      sender,
			Trigger:     string(trigger),
		})
	}
	return sess
}

func (m *Manager) Has(sender string) bool {
	return m.store.HasSession(sender)
}

func (m *Manager) Session(sender string) (*state.TriageSession, bool) {
	return m.store.Session(sender)
}

// RecordCitizen appends the citizen's turn and returns the refreshed session
// snapshot used to build the inference context for that turn.
func (m *Manager) RecordCitizen(sender, text string) (*state.TriageSession, bool) {
	return m.store.AppendExchange(sender, state.Exchange{
		TS:   time.Now().UTC(),
		Role: state.RoleCitizen,
		Text: text,
	}, m.maxHistory)
}

// RecordOperator appends the operator's reply, completing the exchange, and
// logs the pair. The session may have closed while inference ran; the
// exchange is still logged so the audit trail stays complete.
func (m *Manager) RecordOperator(sender, citizenText, operatorText string) {
	sess, ok := m.store.AppendExchange(sender, state.Exchange{
		TS:   time.Now().UTC(),
		Role: state.RoleOperator,
		Text: operatorText,
	}, m.maxHistory)

	ev := auditlog.Event{
		Type:     auditlog.TypeTriageExchange,
		Sender:   sender,
		Citizen:  citizenText,
		Operator: operatorText,
	}
	if ok {
		ev.Trigger = sess.Trigger
	}
	_ = m.sink.Append(ev)
}

// BuildPromptContext renders the system context for an inference call from a
// point-in-time session snapshot. It is pure: the rendered text reflects
// exactly the snapshot it is given.
func (m *Manager) BuildPromptContext(sess *state.TriageSession) string {
	var b strings.Builder
	b.WriteString("You are an Emergency Dispatch Operator on a LoRa mesh network.\n\n")
	b.WriteString("ACTIVE EMERGENCY:\n")
	fmt.Fprintf(&b, "  Trigger: %s\n", dispatch.Trigger(sess.Trigger).Command())
	fmt.Fprintf(&b, "  Time: %s\n", sess.StartedAt.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "  Citizen: %s (%s)\n", sess.Phone, sess.Sender)
	fmt.Fprintf(&b, "  %s\n", dispatch.GPSString(sess.GPSLat, sess.GPSLon))
	fmt.Fprintf(&b, "  Dispatched To: %s\n\n", dispatchedTo(sess))

	if len(sess.Exchanges) > 0 {
		b.WriteString("TRIAGE LOG:\n")
		for _, ex := range sess.Exchanges {
			role := "CITIZEN"
			if ex.Role == state.RoleOperator {
				role = "OPERATOR"
			}
			fmt.Fprintf(&b, "  [%s] %s: %s\n", ex.TS.Format("15:04:05"), role, ex.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("RULES:\n")
	b.WriteString("- You are triaging the above emergency ONLY.\n")
	b.WriteString("- If the citizen goes off-topic, redirect to the active emergency.\n")
	b.WriteString("- Ask ONE follow-up triage question per response.\n")
	b.WriteString("- 2 sentences max. No markdown.\n")
	return b.String()
}

// StampFooter appends the deterministic exit instruction to a reply.
func (m *Manager) StampFooter(reply string) string {
	return reply + "\n" + SafeFooter
}

// Close removes the sender's session and logs the terminal event.
func (m *Manager) Close(sender string, reason CloseReason) (*state.TriageSession, bool) {
	sess, ok := m.store.RemoveSession(sender)
	if !ok {
		return nil, false
	}
	_ = m.sink.Append(auditlog.Event{
		Type:            auditlog.TypeSOSClosed,
		Reason:          string(reason),
		Sender:          sess.Sender,
		Phone:           sess.Phone,
		Trigger:         sess.Trigger,
		Context:         sess.Context,
		GPSLat:          sess.GPSLat,
		GPSLon:          sess.GPSLon,
		RoutedTo:        strings.Join(sess.DispatchedTo, ","),
		ExchangeCount:   len(sess.Exchanges),
		DurationSeconds: int(time.Since(sess.StartedAt).Seconds()),
	})
	return sess, true
}

// CloseAll closes every open session, used on shutdown.
func (m *Manager) CloseAll(reason CloseReason) []*state.TriageSession {
	var closed []*state.TriageSession
	for _, sess := range m.store.Sessions() {
		if c, ok := m.Close(sess.Sender, reason); ok {
			closed = append(closed, c)
		}
	}
	return closed
}

func dispatchedTo(sess *state.TriageSession) string {
	if len(sess.DispatchedTo) == 0 {
		return "ALL RESPONDERS"
	}
	return strings.Join(sess.DispatchedTo, ", ")
}
