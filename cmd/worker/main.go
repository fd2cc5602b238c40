package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/phase-edms/internal/bootstrap"
	"github.com/kirillkom/phase-edms/internal/config"
	"github.com/kirillkom/phase-edms/internal/observability/logging"
	"github.com/kirillkom/phase-edms/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StoreDriver == bootstrap.StoreMemory {
		log.Fatalf("worker requires a shared store; STORE_DRIVER=memory runs jobs inside the api")
	}

	logger := logging.New(logging.Options{Service: "worker", Level: cfg.LogLevel, Format: cfg.LogFormat})
	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.WithResilienceObserver(workerMetrics.Resilience()))
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	runner := app.NewRunner(workerMetrics)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		log.Printf("worker subscribed to %s", cfg.NATSSubject)
		return app.RunWorker(groupCtx, runner)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}
