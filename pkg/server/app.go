package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/domain/repository"
	mid "FieldScan/internal/middleware"
	"FieldScan/internal/service/marketdata"
	"FieldScan/internal/usecase"
	"FieldScan/pkg/cache"
	pkgch "FieldScan/pkg/clickhouse"
	"FieldScan/pkg/config"
	xhttp "FieldScan/pkg/http"
	pkgkafka "FieldScan/pkg/kafka"
	applogger "FieldScan/pkg/logger"
	"FieldScan/pkg/scheduler"
	"FieldScan/pkg/tracing"
)

// Deps lists everything the application owns. Pipeline, Consumer and
// Producer are nil when Kafka is disabled, ClickHouse when it is unused.
type Deps struct {
	Config       *config.Config
	Logger       *applogger.Logger
	Orchestrator *usecase.ScanOrchestrator
	Reviewer     *usecase.SignalReviewer
	Processor    *usecase.ResultProcessor
	Store        repository.SignalStore
	Data         *marketdata.CachedSource
	Cache        cache.Service
	ClickHouse   *pkgch.Client
	Pipeline     *mid.PublishPipeline
	Consumer     *pkgkafka.Consumer
	Producer     *pkgkafka.Producer
	Scheduler    *scheduler.Scheduler
	HTTP         *xhttp.Server
	Tracer       *tracing.Provider
	DefaultMode  models.ScanMode
}

// App encapsulates the application lifecycle: one-shot commands and the
// long-running server share the same wiring.
type App struct {
	Deps
	cfg *config.Config
	l   *applogger.Logger
}

func New(d Deps) *App {
	return &App{Deps: d, cfg: d.Config, l: d.Logger}
}

// Scan runs one batch in the foreground and, after a live batch, reviews
// open signals when scan.review_open is set.
func (a *App) Scan(ctx context.Context, mode models.ScanMode, tickers []string) (*models.ScanResult, error) {
	if mode == "" {
		mode = a.DefaultMode
	}
	a.startPipeline(ctx)

	res, err := a.Orchestrator.Run(ctx, mode, tickers)
	if err != nil {
		return nil, err
	}
	if mode == models.ModeLive && a.cfg.Scan.ReviewOpen {
		if _, err := a.Reviewer.Review(ctx); err != nil {
			a.l.Warn("post-scan review failed", applogger.Error(err))
		}
	}
	return res, nil
}

// Review resolves open live signals against fresh bars.
func (a *App) Review(ctx context.Context) (models.ReviewSummary, error) {
	a.startPipeline(ctx)
	if err := a.Data.Invalidate(ctx); err != nil {
		a.l.Warn("cache invalidate failed", applogger.Error(err))
	}
	return a.Reviewer.Review(ctx)
}

// Serve runs the HTTP API, the scheduled live scan and the scan request
// consumer until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	a.startPipeline(ctx)

	if err := a.Scheduler.Register("live-scan", a.cfg.Scan.Schedule, a.scheduledScan); err != nil {
		return fmt.Errorf("schedule live scan: %w", err)
	}
	a.Scheduler.Start()

	if a.Consumer != nil {
		if err := a.Consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	if err := a.HTTP.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.l.Info("fieldscan serving",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("schedule", a.cfg.Scan.Schedule),
		applogger.Bool("kafka", a.Consumer != nil),
	)

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return nil
}

// scheduledScan is the cron job: fresh bars, a live batch over the universe, then review.
func (a *App) scheduledScan(ctx context.Context) error {
	if err := a.Data.Invalidate(ctx); err != nil {
		a.l.Warn("cache invalidate failed", applogger.Error(err))
	}
	res, err := a.Scan(ctx, models.ModeLive, nil)
	if errors.Is(err, usecase.ErrScanRunning) {
		a.l.Info("scheduled scan skipped, a batch is running")
		return nil
	}
	if err != nil {
		return err
	}
	a.l.Info("scheduled scan done",
		applogger.Int("signals", len(res.Signals)),
		applogger.Int("failed", res.Failed),
	)
	return nil
}

func (a *App) startPipeline(ctx context.Context) {
	if a.Pipeline != nil {
		a.Pipeline.Start(ctx)
	}
}

// Shutdown stops intake first, lets a running batch finish its in-flight
// tickers, then flushes and closes the sinks.
func (a *App) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout+5*time.Second)
		defer cancel()
	}

	if a.HTTP != nil {
		if err := a.HTTP.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.Orchestrator.Stop() {
		a.l.Info("waiting for running scan to stop")
	}
	a.Orchestrator.Wait()

	// the collector ships through the producer, which the processor closes
	a.l.RemoveCollector()
	if err := a.Processor.Close(); err != nil {
		a.l.Warn("result sinks close error", applogger.Error(err))
	}
	if err := a.Store.Close(); err != nil {
		a.l.Warn("signal store close error", applogger.Error(err))
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.Tracer != nil {
		if err := a.Tracer.Shutdown(ctx); err != nil {
			a.l.Warn("tracer shutdown error", applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
	return nil
}
