package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/dispatch"
	"github.com/libertymesh/operator/internal/mesh"
	"github.com/libertymesh/operator/internal/observability"
	"github.com/libertymesh/operator/internal/restrict"
	"github.com/libertymesh/operator/internal/state"
	"github.com/libertymesh/operator/internal/triage"
	"github.com/libertymesh/operator/internal/work"
)

const (
	replyPong          = "[SYSTEM] PONG. Signal received by The Operator."
	replySafeBounce    = "[SOS] If triggered by accident, send !safe to cancel."
	replyCancelled     = "[SYSTEM] SOS cancelled. Responders notified. Stay safe."
	replyNoActiveSOS   = "[SYSTEM] No active SOS to cancel."
	replyBusy          = "[SYSTEM] Busy. Try again in 30s."
	replyFalseAlarm    = "[SYSTEM] No emergency dispatched. Stay safe."
	replyRestricted    = "[SYSTEM] Your access has been temporarily restricted by a responder."
	replyRestored      = "[SYSTEM] Your access has been restored. Send !911 or !help if you need assistance."
	replyNoDispatch    = "[SYSTEM] No recent dispatch found. Cannot identify target."
	replyEmptyList     = "[SYSTEM] Restricted list is empty. No users locked out."
	replyInvalidNumber = "[SYSTEM] Invalid number. Send !cancel to see the list again."
	replyAlreadyLifted = "[SYSTEM] User already removed or restriction expired."
)

// Router is the synchronous per-packet decision tree. It consults the
// restriction gate first, answers instant commands inline, drives the
// dispatch and menu flows, and defers every inference call to the work
// queue. It never blocks on inference or holds the state lock across a
// transmit.
type Router struct {
	store        *state.Store
	sessions     *triage.Manager
	restrictions *restrict.Manager
	resolver     *dispatch.Resolver
	queue        *work.Queue
	tx           mesh.Sender
	dir          mesh.Directory
	sink         auditlog.Sink
	metrics      *observability.Metrics

	chunkSize int
}

func New(store *state.Store, sessions *triage.Manager, restrictions *restrict.Manager, resolver *dispatch.Resolver, queue *work.Queue, tx mesh.Sender, dir mesh.Directory, sink auditlog.Sink, metrics *observability.Metrics, chunkSize int) *Router {
	if chunkSize <= 0 {
		chunkSize = 180
	}
	return &Router{
		store:        store,
		sessions:     sessions,
		restrictions: restrictions,
		resolver:     resolver,
		queue:        queue,
		tx:           tx,
		dir:          dir,
		sink:         sink,
		metrics:      metrics,
		chunkSize:    chunkSize,
	}
}

// HandlePacket routes one inbound packet. It is called from the transport's
// receive loop and must return promptly.
func (r *Router) HandlePacket(pkt mesh.Packet) {
	text := strings.TrimSpace(pkt.Text)
	if pkt.Own || pkt.From == "" || text == "" {
		return
	}

	phone := r.dir.NameOf(pkt.From)
	_ = r.sink.Append(auditlog.Event{
		Type:    auditlog.TypeRX,
		Sender:  pkt.From,
		Phone:   phone,
		Message: text,
	})

	cmd := Classify(text)

	// Responder administrative commands are gated on node identity, never
	// advertised: an unauthorized !spam looks exactly like free text.
	if r.restrictions.IsAuthorizedResponder(pkt.From) {
		switch cmd.Kind {
		case CmdLockout:
			r.handleLockout(pkt.From)
			return
		case CmdRestrictList:
			r.handleRestrictList(pkt.From)
			return
		case CmdNumeric:
			if r.handleLiftSelection(pkt.From, cmd.Number) {
				return
			}
		default:
			// Any other command abandons a displayed restriction list.
			r.store.ClearPendingLift(pkt.From)
		}
	}

	if r.restrictions.IsRestricted(pkt.From) {
		// No reply: the citizen already got the lockout notice, and answering
		// would hand abusers a liveness probe.
		_ = r.sink.Append(auditlog.Event{
			Type:    auditlog.TypeRestricted,
			Sender:  pkt.From,
			Phone:   phone,
			Reason:  "attempt_dropped",
			Message: text,
		})
		r.metrics.IncPackets("restricted_drop")
		return
	}

	switch cmd.Kind {
	case CmdPing:
		r.tx.Send(pkt.From, replyPong)
		r.logCommand(pkt.From, "ping")
		r.metrics.IncPackets("instant")
	case CmdStatus:
		r.tx.Send(pkt.From, r.statusLine())
		r.logCommand(pkt.From, "status")
		r.metrics.IncPackets("instant")
	case CmdSafe:
		r.handleSafe(pkt.From)
	case CmdNumeric:
		r.handleMenuReply(pkt.From, phone, text)
	case CmdTrigger:
		r.dispatchFlow(pkt.From, phone, cmd.Trigger, cmd.Context)
	case CmdMenu:
		r.handleMenu(pkt.From, phone)
	default:
		r.handleFreeText(pkt.From, phone, text)
	}
}

func (r *Router) handleSafe(sender string) {
	sess, ok := r.sessions.Close(sender, triage.ReasonSafe)
	if !ok {
		r.tx.Send(sender, replyNoActiveSOS)
		return
	}
	r.resolver.Cancel(sess)
	r.tx.Send(sender, replyCancelled)
	r.metrics.IncPackets("safe")
	r.metrics.SetActiveSessions(r.store.SessionCount())
}

func (r *Router) handleMenu(sender, phone string) {
	lat, lon := r.lookupGPS(sender)

	r.tx.Send(sender, fmt.Sprintf("[SOS] 911 RECEIVED. %s", dispatch.GPSString(lat, lon)))
	for _, chunk := range mesh.Chunk(dispatch.Menu911, r.chunkSize) {
		r.tx.Send(sender, chunk)
	}

	r.store.PutPendingMenu(state.PendingMenu{
		Sender:   sender,
		GPSLat:   lat,
		GPSLon:   lon,
		IssuedAt: time.Now().UTC(),
	})

	_ = r.sink.Append(auditlog.Event{
		Type:   auditlog.TypeSOS911Triggered,
		Sender: sender,
		Phone:  phone,
		GPSLat: lat,
		GPSLon: lon,
	})
	r.metrics.IncPackets("menu")
}

func (r *Router) handleMenuReply(sender, phone, raw string) {
	if !r.store.HasPendingMenu(sender) {
		// A bare number with no menu outstanding is just chat.
		r.handleFreeText(sender, phone, raw)
		return
	}

	trigger, falseAlarm, ok := dispatch.MenuSelect(raw)
	if !ok {
		r.handleFreeText(sender, phone, raw)
		return
	}

	menu, _ := r.store.TakePendingMenu(sender)

	if falseAlarm {
		r.tx.Send(sender, replyFalseAlarm)
		_ = r.sink.Append(auditlog.Event{
			Type:   auditlog.TypeSOSFalseAlarm,
			Sender: sender,
			Phone:  phone,
			Method: "911_menu",
		})
		r.metrics.IncPackets("false_alarm")
		return
	}

	// The dispatch reuses the position captured when the menu was issued; a
	// citizen who has since lost fix still gets located.
	r.dispatchWith(sender, phone, trigger, "", menu.GPSLat, menu.GPSLon)
}

func (r *Router) dispatchFlow(sender, phone string, trigger dispatch.Trigger, context string) {
	lat, lon := r.lookupGPS(sender)
	r.dispatchWith(sender, phone, trigger, context, lat, lon)
}

func (r *Router) dispatchWith(sender, phone string, trigger dispatch.Trigger, context string, lat, lon *float64) {
	r.tx.Send(sender, fmt.Sprintf("[SOS] %s RECEIVED. %s", trigger.Upper(), dispatch.GPSString(lat, lon)))
	r.tx.Send(sender, replySafeBounce)

	targets := r.resolver.Dispatch(sender, phone, trigger, lat, lon, context)
	sess := r.sessions.Open(sender, phone, trigger, lat, lon, targets, context)

	r.metrics.IncDispatch(string(trigger))
	r.metrics.IncPackets("dispatch")
	r.metrics.SetActiveSessions(r.store.SessionCount())

	// The free-text context doubles as the first triage turn.
	if strings.TrimSpace(context) != "" {
		r.enqueue(work.Item{
			Sender:        sender,
			Mode:          work.ModeTriage,
			Text:          context,
			PromptContext: r.sessions.BuildPromptContext(sess),
		}, phone, context)
	}
}

func (r *Router) handleFreeText(sender, phone, text string) {
	if sess, ok := r.sessions.RecordCitizen(sender, text); ok {
		r.enqueue(work.Item{
			Sender:        sender,
			Mode:          work.ModeTriage,
			Text:          text,
			PromptContext: r.sessions.BuildPromptContext(sess),
		}, phone, text)
		r.metrics.IncPackets("triage")
		return
	}

	r.enqueue(work.Item{
		Sender: sender,
		Mode:   work.ModeGeneral,
		Text:   text,
	}, phone, text)
	r.metrics.IncPackets("general")
}

// enqueue applies backpressure: a saturated queue bounces the sender with an
// explicit busy notice instead of dropping silently.
func (r *Router) enqueue(item work.Item, phone, text string) {
	if r.queue.TryEnqueue(item) {
		r.metrics.SetQueueDepth(r.queue.Depth())
		return
	}
	r.tx.Send(item.Sender, replyBusy)
	_ = r.sink.Append(auditlog.Event{
		Type:    auditlog.TypeBouncerDrop,
		Sender:  item.Sender,
		Phone:   phone,
		Message: text,
	})
	r.metrics.IncBouncerDrop()
}

func (r *Router) handleLockout(responder string) {
	target, ok := r.store.LastDispatch(responder)
	if !ok {
		r.tx.Send(responder, replyNoDispatch)
		return
	}

	targetPhone := r.dir.NameOf(target)
	sessionClosed := r.restrictions.Restrict(target, targetPhone, responder)
	if sessionClosed {
		r.tx.Send(responder, fmt.Sprintf("[RESTRICTED] Triage for %s force-closed.", targetPhone))
	}

	minutes := int(r.restrictions.Duration().Minutes())
	r.tx.Send(responder, fmt.Sprintf("[RESTRICTED] %s locked out for %d min.", targetPhone, minutes))
	r.tx.Send(target, replyRestricted)

	r.metrics.SetActiveSessions(r.store.SessionCount())
	r.metrics.SetActiveRestricted(r.store.RestrictionCount(time.Now()))
	r.metrics.IncPackets("lockout")
}

func (r *Router) handleRestrictList(responder string) {
	entries := r.restrictions.Active()
	if len(entries) == 0 {
		r.tx.Send(responder, replyEmptyList)
		return
	}

	now := time.Now()
	lines := []string{"[RESTRICTED LIST]"}
	ordered := make([]string, 0, len(entries))
	for i, entry := range entries {
		remaining := int(entry.Expiry.Sub(now).Minutes())
		lines = append(lines, fmt.Sprintf("%d. %s - %d min left", i+1, entry.Phone, remaining))
		ordered = append(ordered, entry.Sender)
	}
	lines = append(lines, "Reply with number to remove.")

	r.store.PutPendingLift(responder, ordered)

	for _, chunk := range mesh.Chunk(strings.Join(lines, "\n"), r.chunkSize) {
		r.tx.Send(responder, chunk)
	}
	r.metrics.IncPackets("restrict_list")
}

// handleLiftSelection resolves a responder's numbered reply against their
// displayed restriction list. It reports false when no list is outstanding
// so the number can be routed as ordinary citizen traffic.
func (r *Router) handleLiftSelection(responder string, number int) bool {
	ordered, ok := r.store.PendingLift(responder)
	if !ok {
		return false
	}

	if number < 1 || number > len(ordered) {
		// The list stays displayed; the responder can try again.
		r.tx.Send(responder, replyInvalidNumber)
		return true
	}

	r.store.TakePendingLift(responder)
	target := ordered[number-1]

	entry, lifted := r.restrictions.Lift(target, responder)
	if !lifted {
		r.tx.Send(responder, replyAlreadyLifted)
		return true
	}

	r.tx.Send(responder, fmt.Sprintf("[SYSTEM] %s removed from restricted list.", entry.Phone))
	r.tx.Send(target, replyRestored)
	r.metrics.SetActiveRestricted(r.store.RestrictionCount(time.Now()))
	return true
}

func (r *Router) statusLine() string {
	now := time.Now()
	return fmt.Sprintf("[SYSTEM] Operator Online | Queue: %d | Nodes: %d | Responders: %d | Triage: %d | Restricted: %d",
		r.queue.Depth(),
		r.dir.NodeCount(),
		len(r.resolver.Responders()),
		r.store.SessionCount(),
		r.store.RestrictionCount(now))
}

func (r *Router) logCommand(sender, command string) {
	_ = r.sink.Append(auditlog.Event{
		Type:    auditlog.TypeCommand,
		Sender:  sender,
		Command: command,
	})
}

func (r *Router) lookupGPS(sender string) (*float64, *float64) {
	lat, lon, ok := r.dir.GPSOf(sender)
	if !ok {
		return nil, nil
	}
	return &lat, &lon
}
