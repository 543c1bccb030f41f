package mesh

import (
	"github.com/libertymesh/operator/internal/auditlog"
)

// BestEffort wraps a Sender so transport faults never propagate: failures are
// recorded as system audit events and swallowed. Everything downstream of the
// router treats transmission as "message may not have arrived".
type BestEffort struct {
	inner Sender
	sink  auditlog.Sink
}

func NewBestEffort(inner Sender, sink auditlog.Sink) *BestEffort {
	return &BestEffort{inner: inner, sink: sink}
}

func (s *BestEffort) Send(dest, text string) error {
	if err := s.inner.Send(dest, text); err != nil {
		_ = s.sink.Append(auditlog.Event{
			Type:        auditlog.TypeSystem,
			SystemEvent: "send_failed",
			Sender:      dest,
			Detail:      err.Error(),
		})
	}
	return nil
}
