package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/config"
	"github.com/libertymesh/operator/internal/dispatch"
	"github.com/libertymesh/operator/internal/httpapi"
	"github.com/libertymesh/operator/internal/infer"
	"github.com/libertymesh/operator/internal/mesh"
	"github.com/libertymesh/operator/internal/observability"
	"github.com/libertymesh/operator/internal/restrict"
	"github.com/libertymesh/operator/internal/router"
	"github.com/libertymesh/operator/internal/state"
	"github.com/libertymesh/operator/internal/triage"
	"github.com/libertymesh/operator/internal/watchdog"
	"github.com/libertymesh/operator/internal/work"
)

// BuildResult holds every wired component and the long-running loops main
// must drive.
type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Router   *router.Router
	Watchdog *watchdog.Watchdog
	Workers  []*work.Worker
	Sessions *triage.Manager
	Sink     auditlog.Sink
	Metrics  *observability.Metrics

	// Mesh is non-nil when a real bridge client was built; nil in mock
	// transport mode, where there is no receive loop to run.
	Mesh *mesh.Client

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build wires the gateway from configuration. Nothing starts running here:
// the caller owns the mesh receive loop, the workers, and the watchdog.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	sink, err := auditlog.NewSink(ctx, cfg.DatabaseURL, cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("audit sink init failed: %w", err)
	}

	adapter, err := infer.NewAdapter(infer.Config{
		Mode:   cfg.InferMode,
		URL:    cfg.InferURL,
		APIKey: cfg.InferAPIKey,
		Model:  cfg.InferModel,
	})
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("inference adapter init failed: %w", err)
	}

	var (
		client *mesh.Client
		tx     mesh.Sender
		dir    mesh.Directory
	)
	if strings.EqualFold(strings.TrimSpace(cfg.MeshBridgeURL), "mock") {
		mock := mesh.NewMockTransport()
		tx, dir = mock, mock
	} else {
		client, err = mesh.NewClient(cfg.MeshBridgeURL)
		if err != nil {
			_ = sink.Close()
			return nil, fmt.Errorf("mesh client init failed: %w", err)
		}
		tx, dir = client, client
	}
	// Send failures are audited, never fatal: the radio link is lossy by
	// nature and every notice is best effort.
	tx = mesh.NewBestEffort(tx, sink)

	store := state.NewStore()
	sessions := triage.NewManager(store, sink, cfg.TriageHistory)

	resolver := dispatch.NewResolver(map[dispatch.Trigger]string{
		dispatch.TriggerPolice: cfg.ResponderPolice,
		dispatch.TriggerFire:   cfg.ResponderFire,
		dispatch.TriggerEMS:    cfg.ResponderEMS,
	}, tx, store, sink)

	restrictions := restrict.NewManager(store, sink, sessions, cfg.Responders(), cfg.LockoutDuration)

	queue := work.NewQueue(cfg.QueueDepth)
	workers := make([]*work.Worker, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		workers = append(workers, work.NewWorker(queue, adapter, tx, store, sessions, sink, metrics, work.WorkerConfig{
			InferTimeout: cfg.InferTimeout,
			ChunkSize:    cfg.ChunkSize,
			ChatWindow:   cfg.ChatWindow,
		}))
	}

	rtr := router.New(store, sessions, restrictions, resolver, queue, tx, dir, sink, metrics, cfg.ChunkSize)

	wd := watchdog.New(store, sessions, resolver, tx, dir, sink, metrics, watchdog.Config{
		Interval:      cfg.WatchdogInterval,
		TriageTimeout: cfg.TriageTimeout,
		MenuTimeout:   cfg.MenuTimeout,
	})

	api := httpapi.New(cfg, store, restrictions, resolver, queue, metrics)

	cleanup := func() error {
		return sink.Close()
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Router:   rtr,
		Watchdog: wd,
		Workers:  workers,
		Sessions: sessions,
		Sink:     sink,
		Metrics:  metrics,
		Mesh:     client,
		Cleanup:  cleanup,
	}, nil
}
