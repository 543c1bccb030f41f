package auditlog

import (
	"context"
	"strings"
)

// NewSink creates a postgres-backed sink when configured, otherwise the
// append-only JSONL file sink.
func NewSink(ctx context.Context, databaseURL, filePath string) (Sink, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresSink(ctx, databaseURL)
	}
	return NewFileSink(filePath)
}
