package infer

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter produces deterministic replies when no model backend is
// configured. The gateway still acknowledges and dispatches normally; only
// the conversational turns are canned.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Respond(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return Response{Text: "Operator standing by. State your emergency."}, nil
	}
	if strings.Contains(req.System, "ACTIVE EMERGENCY") {
		return Response{Text: fmt.Sprintf("Understood: %s. Are you in a safe location right now?", truncate(last, 60))}, nil
	}
	return Response{Text: fmt.Sprintf("Received: %s", truncate(last, 60))}, nil
}
