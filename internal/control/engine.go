package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shopspring/decimal"

	"github.com/vietddude/marketsync/internal/core/config"
	"github.com/vietddude/marketsync/internal/core/domain"
	redisclient "github.com/vietddude/marketsync/internal/infra/redis"
	"github.com/vietddude/marketsync/internal/infra/source"
	"github.com/vietddude/marketsync/internal/infra/storage"
	"github.com/vietddude/marketsync/internal/infra/storage/memory"
	"github.com/vietddude/marketsync/internal/infra/storage/postgres"
	"github.com/vietddude/marketsync/internal/reliability/backfill"
	"github.com/vietddude/marketsync/internal/reliability/failure"
	"github.com/vietddude/marketsync/internal/reliability/health"
	"github.com/vietddude/marketsync/internal/reliability/quality"
	"github.com/vietddude/marketsync/internal/reliability/retry"
)

// Engine wires the reliability components and runs them on independent
// cadences: quality checks feed the backfill queue, the queue drains through
// the retry executor, and failure tracking feeds alerts.
type Engine struct {
	cfg          *config.AppConfig
	scheduler    *backfill.Scheduler
	checker      *quality.Checker
	tracker      *failure.Tracker
	healthServer *health.Server
	alerts       AlertSink
	cron         *gocron.Scheduler
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	alerted map[string]bool // keys already alerted, reset on recovery
}

// NewEngine builds an engine from validated configuration.
func NewEngine(cfg *config.AppConfig) (*Engine, error) {
	// 1. Storage
	var (
		taskRepo    storage.TaskRepository
		qualityRepo storage.QualityRepository
		seriesRepo  storage.SeriesRepository
		errorRepo   storage.ErrorLogRepository
		db          *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(cfg.Database.MigrationsDir); err != nil {
			return nil, err
		}
		taskRepo = postgres.NewTaskRepo(db)
		qualityRepo = postgres.NewQualityRepo(db)
		seriesRepo = postgres.NewSeriesRepo(db)
		errorRepo = postgres.NewErrorLogRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewStorage()
		taskRepo = memory.NewTaskRepo(store)
		qualityRepo = memory.NewQualityRepo(store)
		seriesRepo = memory.NewSeriesRepo(store)
		errorRepo = memory.NewErrorLogRepo(store)
		slog.Info("Using memory storage")
	}

	// 2. Fetchers, one long-lived instance per upstream source
	fetchers := make(source.Fetchers, len(cfg.Sources))
	for _, src := range cfg.Sources {
		fetchers[src.Name] = source.NewHTTPSource(src.Name, src.URL, src.Timeout)
	}

	// 3. Registered series
	specs := make(map[domain.SeriesKey]domain.SeriesSpec, len(cfg.Series))
	specList := make([]domain.SeriesSpec, 0, len(cfg.Series))
	for _, s := range cfg.Series {
		spec := domain.SeriesSpec{
			Key:      domain.SeriesKey(s.Key),
			Interval: s.Interval,
			Source:   s.Source,
		}
		specs[spec.Key] = spec
		specList = append(specList, spec)
	}

	// 4. Reliability components
	tracker := failure.New(cfg.Failure.Threshold)

	scheduler := backfill.NewScheduler(
		backfill.Config{
			WorkerCount:   cfg.Backfill.Workers,
			ClaimBatch:    cfg.Backfill.ClaimBatch,
			DrainInterval: cfg.Backfill.DrainInterval,
			LeaseTimeout:  cfg.Backfill.LeaseTimeout,
			Retry: retry.Policy{
				MaxRetries:    cfg.Backfill.Retry.MaxRetries,
				InitialDelay:  cfg.Backfill.Retry.InitialDelay,
				BackoffFactor: cfg.Backfill.Retry.BackoffFactor,
				MaxDelay:      cfg.Backfill.Retry.MaxDelay,
				JitterEnabled: cfg.Backfill.Retry.Jitter,
			},
		},
		taskRepo, seriesRepo, errorRepo, fetchers, specs, tracker,
	)

	qualityCfg := quality.Config{
		Lookback:          cfg.Quality.Lookback,
		ScoreFloor:        cfg.Quality.ScoreFloor,
		RecentGapSlots:    quality.DefaultConfig().RecentGapSlots,
		TrailingExclusion: cfg.Quality.TrailingExclusion,
	}
	if cfg.Quality.MaxPrice != "" {
		maxPrice, err := decimal.NewFromString(cfg.Quality.MaxPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid quality.max_price: %w", err)
		}
		qualityCfg.MaxPrice = maxPrice
	}
	checker := quality.NewChecker(qualityCfg, seriesRepo, qualityRepo, scheduler, specList)

	// 5. Health
	thresholds := health.DefaultThresholds()
	thresholds.QualityFloor = cfg.Quality.ScoreFloor
	monitor := health.NewMonitor(thresholds, specList, taskRepo, qualityRepo, tracker)
	healthServer := health.NewServer(monitor, cfg.Server.Port)

	// 6. Optional manual request channel
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, manual requests disabled", "error", err)
			redisClient = nil
		}
	}

	return &Engine{
		cfg:          cfg,
		scheduler:    scheduler,
		checker:      checker,
		tracker:      tracker,
		healthServer: healthServer,
		alerts:       NewLogSink(),
		cron:         gocron.NewScheduler(time.UTC),
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default().With("component", "engine"),
		alerted:      make(map[string]bool),
	}, nil
}

// SetAlertSink replaces the default log-backed sink.
func (e *Engine) SetAlertSink(sink AlertSink) {
	e.alerts = sink
}

// Start launches the health server, the backfill drain loop, the quality
// check cadence and, when Redis is configured, the manual request drainer.
func (e *Engine) Start(ctx context.Context) error {
	go func() {
		if err := e.healthServer.Start(); err != nil {
			e.log.Error("Health server failed", "error", err)
		}
	}()

	go func() {
		if err := e.scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("Backfill scheduler stopped", "error", err)
		}
	}()

	if _, err := e.cron.Every(e.cfg.Quality.CheckInterval).Do(func() {
		e.runQualityPass(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule quality checks: %w", err)
	}
	e.cron.StartAsync()

	if e.redisClient != nil {
		go e.drainManualRequests(ctx)
	}

	e.log.Info("Engine started",
		"series", len(e.cfg.Series), "sources", len(e.cfg.Sources),
		"quality_interval", e.cfg.Quality.CheckInterval,
		"drain_interval", e.cfg.Backfill.DrainInterval)
	return nil
}

// Stop shuts the engine down gracefully.
func (e *Engine) Stop(ctx context.Context) error {
	e.log.Info("Stopping engine...")
	e.cron.Stop()

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn("Failed to close database", "error", err)
		}
	}
	return e.healthServer.Stop(ctx)
}

// runQualityPass checks every series and raises alert signals for stuck
// sources and sub-floor quality scores.
func (e *Engine) runQualityPass(ctx context.Context) {
	summaries := e.checker.CheckAll(ctx)

	for _, summary := range summaries {
		if e.checker.BelowFloor(summary) {
			e.alerts.Notify(ctx, Alert{
				SeriesKey: string(summary.SeriesKey),
				Reason:    "quality score below floor",
				Details: map[string]any{
					"score":        summary.QualityScore,
					"missing":      summary.MissingCount,
					"duplicates":   summary.DuplicateCount,
					"out_of_order": summary.OutOfOrderCount,
				},
			})
		}
	}

	// Threshold alerts run over the registered set, not the check results.
	// A series whose own check fails still has to surface its stuck source.
	for _, s := range e.cfg.Series {
		if e.tracker.ThresholdExceeded(s.Key) {
			if !e.alerted[s.Key] {
				e.alerted[s.Key] = true
				e.alerts.Notify(ctx, Alert{
					SeriesKey: s.Key,
					Reason:    "consecutive fetch failures exceeded threshold",
					Details:   map[string]any{"threshold": e.tracker.Threshold()},
				})
			}
		} else {
			delete(e.alerted, s.Key)
		}
	}
}

// drainManualRequests converts ops-pushed backfill requests into queue tasks.
func (e *Engine) drainManualRequests(ctx context.Context) {
	e.log.Info("Manual backfill request drainer started")
	for {
		if ctx.Err() != nil {
			return
		}

		req, err := e.redisClient.PopRequest(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Error("Failed to pop manual request", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if req == nil {
			continue
		}

		id, err := e.scheduler.Enqueue(ctx,
			domain.SeriesKey(req.SeriesKey), req.RangeStart, req.RangeEnd,
			domain.PriorityManual, nil)
		if err != nil {
			e.log.Error("Failed to enqueue manual request",
				"series", req.SeriesKey, "error", err)
			continue
		}
		e.log.Info("Manual backfill queued",
			"series", req.SeriesKey, "range", req.Range().String(), "task", id)
	}
}
