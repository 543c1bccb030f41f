package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/libertymesh/operator/internal/app"
	"github.com/libertymesh/operator/internal/auditlog"
	"github.com/libertymesh/operator/internal/config"
	"github.com/libertymesh/operator/internal/triage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	result, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("build failed: %v", err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			log.Printf("cleanup error: %v", err)
		}
	}()

	_ = result.Sink.Append(auditlog.Event{
		Type:        auditlog.TypeSystem,
		SystemEvent: "startup",
		Detail:      "operator gateway online",
	})

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	var wg sync.WaitGroup

	if result.Mesh != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := result.Mesh.Run(runCtx, result.Router.HandlePacket); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("mesh loop exited: %v", err)
			}
		}()
	} else {
		log.Printf("mesh transport: mock (no radio bridge)")
	}

	for _, worker := range result.Workers {
		worker := worker
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(runCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		result.Watchdog.Run(runCtx)
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: result.API.Router(),
	}
	go func() {
		log.Printf("admin api listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	wg.Wait()

	// Open sessions are closed with an audited reason so the trail never ends
	// mid-incident.
	for _, sess := range result.Sessions.CloseAll(triage.ReasonShutdown) {
		log.Printf("closed triage session for %s on shutdown", sess.Phone)
	}

	_ = result.Sink.Append(auditlog.Event{
		Type:        auditlog.TypeSystem,
		SystemEvent: "shutdown",
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
