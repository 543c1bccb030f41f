package infer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized inference request: a system context (either the
// plain operator persona or a full triage-session snapshot) plus the chat
// turns for this call.
type Request struct {
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
}

// Response is the model's final text.
type Response struct {
	Text string `json:"text"`
}

// Adapter bridges the dispatch workers with a language model backend.
type Adapter interface {
	Respond(ctx context.Context, req Request) (Response, error)
}

// Config controls adapter construction.
type Config struct {
	Mode   string
	URL    string
	APIKey string
	Model  string
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			// Keep a deterministic floor under the real backend: an offline
			// model host must never take the gateway down with it.
			return NewFallbackAdapter(NewHTTPAdapter(cfg.URL, cfg.APIKey, cfg.Model), NewMockAdapter()), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("inference URL is required for http mode")
		}
		return NewHTTPAdapter(cfg.URL, cfg.APIKey, cfg.Model), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported inference adapter mode %q", cfg.Mode)
	}
}
