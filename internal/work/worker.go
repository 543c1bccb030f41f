package work

import (
	"context"
	"time"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/infer"
	"github.com/libertymesh/operator/internal/mesh"
	"github.com/libertymesh/operator/internal/observability"
	"github.com/libertymesh/operator/internal/state"
	"github.com/libertymesh/operator/internal/triage"
)

const generalPersona = "You are The Operator. Be clinical and concise. 2 sentences max. No markdown."

const (
	fallbackTriageReply  = "[SYSTEM] No response generated. Repeat your last message."
	fallbackGeneralReply = "[SYSTEM] No response generated. Try again."
	workerErrorReply     = "[SYSTEM] Operator error. Message logged. Try again."
)

// Worker drains the queue, performs the inference call under a hard timeout,
// and transmits the chunked reply. A failed call degrades to a fixed fallback
// reply; nothing a worker does can take the loop down.
type Worker struct {
	queue    *Queue
	adapter  infer.Adapter
	tx       mesh.Sender
	store    *state.Store
	sessions *triage.Manager
	sink     auditlog.Sink
	metrics  *observability.Metrics

	inferTimeout time.Duration
	chunkSize    int
	chatWindow   int
}

type WorkerConfig struct {
	InferTimeout time.Duration
	ChunkSize    int
	ChatWindow   int
}

func NewWorker(queue *Queue, adapter infer.Adapter, tx mesh.Sender, store *state.Store, sessions *triage.Manager, sink auditlog.Sink, metrics *observability.Metrics, cfg WorkerConfig) *Worker {
	if cfg.InferTimeout <= 0 {
		cfg.InferTimeout = 30 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 180
	}
	if cfg.ChatWindow <= 0 {
		cfg.ChatWindow = 4
	}
	return &Worker{
		queue:        queue,
		adapter:      adapter,
		tx:           tx,
		store:        store,
		sessions:     sessions,
		sink:         sink,
		metrics:      metrics,
		inferTimeout: cfg.InferTimeout,
		chunkSize:    cfg.ChunkSize,
		chatWindow:   cfg.ChatWindow,
	}
}

// Run processes items until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, ok := w.queue.Dequeue(ctx)
		if !ok {
			return
		}
		w.process(ctx, item)
		w.metrics.SetQueueDepth(w.queue.Depth())
	}
}

func (w *Worker) process(ctx context.Context, item Item) {
	switch item.Mode {
	case ModeTriage:
		w.processTriage(ctx, item)
	default:
		w.processGeneral(ctx, item)
	}
}

func (w *Worker) processTriage(ctx context.Context, item Item) {
	// The session may have closed (safe, timeout, restriction) while this
	// item waited; replying would only confuse the citizen.
	if !w.sessions.Has(item.Sender) {
		return
	}

	reply, err := w.respond(ctx, infer.Request{
		System:   item.PromptContext,
		Messages: []infer.Message{{Role: "user", Content: item.Text}},
	})
	if err != nil {
		w.degrade(item.Sender, err)
		return
	}
	if reply == "" {
		reply = fallbackTriageReply
	}

	w.sessions.RecordOperator(item.Sender, item.Text, reply)

	// Footer is stamped here, never by the model.
	w.transmit(item.Sender, w.sessions.StampFooter(reply))
}

func (w *Worker) processGeneral(ctx context.Context, item Item) {
	window := w.store.AppendConversation(item.Sender, state.ConversationTurn{
		Role: state.RoleCitizen,
		Text: item.Text,
	}, w.chatWindow)

	messages := make([]infer.Message, 0, len(window))
	for _, turn := range window {
		role := "user"
		if turn.Role == state.RoleOperator {
			role = "assistant"
		}
		messages = append(messages, infer.Message{Role: role, Content: turn.Text})
	}

	reply, err := w.respond(ctx, infer.Request{System: generalPersona, Messages: messages})
	if err != nil {
		w.degrade(item.Sender, err)
		return
	}
	if reply == "" {
		reply = fallbackGeneralReply
	}

	w.store.AppendConversation(item.Sender, state.ConversationTurn{
		Role: state.RoleOperator,
		Text: reply,
	}, w.chatWindow)

	_ = w.sink.Append(auditlog.Event{
		Type:     auditlog.TypeGeneralExchange,
		Sender:   item.Sender,
		Citizen:  item.Text,
		Operator: reply,
	})

	w.transmit(item.Sender, reply)
}

func (w *Worker) respond(ctx context.Context, req infer.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.inferTimeout)
	defer cancel()

	started := time.Now()
	resp, err := w.adapter.Respond(callCtx, req)
	w.metrics.ObserveInference(time.Since(started).Seconds())
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (w *Worker) degrade(sender string, err error) {
	w.metrics.IncInferenceError()
	w.tx.Send(sender, workerErrorReply)
	_ = w.sink.Append(auditlog.Event{
		Type:        auditlog.TypeSystem,
		SystemEvent: "ai_worker_error",
		Sender:      sender,
		Detail:      err.Error(),
	})
}

func (w *Worker) transmit(sender, text string) {
	for _, chunk := range mesh.Chunk(text, w.chunkSize) {
		w.tx.Send(sender, chunk)
	}
}
