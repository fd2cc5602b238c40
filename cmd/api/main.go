package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/phase-edms/internal/adapters/http"
	"github.com/kirillkom/phase-edms/internal/bootstrap"
	"github.com/kirillkom/phase-edms/internal/config"
	"github.com/kirillkom/phase-edms/internal/observability/logging"
	"github.com/kirillkom/phase-edms/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(logging.Options{Service: "api", Level: cfg.LogLevel, Format: cfg.LogFormat})
	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.WithResilienceObserver(httpMetrics.Resilience()))
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	// The memory store lives in this process, so jobs must run here too.
	if cfg.StoreDriver == bootstrap.StoreMemory {
		runner := app.NewRunner(nil)
		go func() {
			if err := app.RunWorker(ctx, runner); err != nil {
				log.Printf("embedded worker error: %v", err)
			}
		}()
	}

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Reviews:       app.Reviews,
		Revisions:     app.Store.Revisions(),
		Registry:      app.Catalog.Registry(),
		Transmittals:  app.Transmittals,
		Outgoing:      app.Outgoing,
		OutgoingRead:  app.Outgoing,
		Jobs:          app.Jobs,
		Notifications: app.Notifications,
		Activities:    app.Activities,
		Recorder:      httpMetrics,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", httpMetrics.Middleware("api", router.Handler()))

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		log.Fatalf("api listen error: %v", err)
	}
	if cfg.APIMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConns)
	}

	go func() {
		log.Printf("api listening on :%s (store=%s)", cfg.APIPort, cfg.StoreDriver)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
