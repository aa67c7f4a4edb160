package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosarlab/graphrag/internal/bootstrap"
	"github.com/mosarlab/graphrag/internal/config"
	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/observability/logging"
	"github.com/mosarlab/graphrag/internal/observability/metrics"
)

const questionTimeout = 2 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeQuestions(ctx, func(handlerCtx context.Context, envelope domain.QuestionEnvelope) (*domain.Answer, error) {
		processCtx, cancel := context.WithTimeout(handlerCtx, questionTimeout)
		defer cancel()

		workerMetrics.StartQuestion()
		start := time.Now()
		answer, err := app.Workflow.Query(processCtx, envelope.Question)
		workerMetrics.FinishQuestion("worker", time.Since(start), err)
		return answer, err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}
