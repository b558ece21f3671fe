package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/retail-analytics/internal/config"
	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/infrastructure/queue/nats"
	"github.com/kirillkom/retail-analytics/internal/observability/metrics"
)

// The monitor tails the training event stream and exposes it as Prometheus
// metrics, so dashboards track job progress without touching the API.
func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		log.Fatalf("connect queue: %v", err)
	}
	defer queue.Close()

	trainingMetrics := metrics.NewTrainingMetrics("monitor")
	metricsServer := &http.Server{
		Addr:        ":" + cfg.MonitorMetricsPort,
		Handler:     trainingMetrics.Handler(),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("monitor metrics listening on :%s", cfg.MonitorMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()

	log.Printf("monitor subscribed to %s", cfg.NATSSubject)
	err = queue.SubscribeTrainingEvents(ctx, func(_ context.Context, event domain.TrainingEvent) error {
		trainingMetrics.RecordEvent(
			"monitor",
			string(event.Model),
			string(event.Status),
			event.Status.Terminal(),
			event.Progress,
			event.Timestamp,
		)
		return nil
	})
	if err != nil {
		log.Fatalf("monitor subscribe error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
