package commands

import (
	"fmt"
	"time"

	"github.com/ymatsuda/cuprum/internal/alert"
	"github.com/ymatsuda/cuprum/internal/api"
	"github.com/ymatsuda/cuprum/internal/api/handlers"
	"github.com/ymatsuda/cuprum/internal/backup"
	"github.com/ymatsuda/cuprum/internal/evaluate"
	"github.com/ymatsuda/cuprum/internal/marketdata"
	"github.com/ymatsuda/cuprum/internal/model"
	"github.com/ymatsuda/cuprum/internal/notify"
	"github.com/ymatsuda/cuprum/internal/pipeline"
	"github.com/ymatsuda/cuprum/internal/predict"
	"github.com/ymatsuda/cuprum/internal/quality"
	"github.com/ymatsuda/cuprum/internal/scheduler"
	"github.com/ymatsuda/cuprum/internal/scheduler/jobs"
	"github.com/ymatsuda/cuprum/internal/store"
	"github.com/ymatsuda/cuprum/pkg/config"
	"github.com/ymatsuda/cuprum/pkg/database"
	"github.com/ymatsuda/cuprum/pkg/logger"
	"github.com/ymatsuda/cuprum/pkg/redis"
)

// deps holds every wired component of the application
type deps struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	cache *redis.Client

	collector    *marketdata.Collector
	validator    *quality.Validator
	predictor    *predict.Predictor
	reconciler   *predict.Reconciler
	evaluator    *evaluate.Evaluator
	orchestrator *pipeline.Orchestrator
	backupMgr    *backup.Manager
	hub          *api.Hub
	server       *api.Server
	scheduler    *scheduler.Scheduler
}

// close releases connections in reverse wiring order
func (d *deps) close() {
	if d.hub != nil {
		d.hub.Close()
	}
	if d.cache != nil {
		d.cache.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}

// initDeps wires the full application
func initDeps(withServer bool) (*deps, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	zl := log.Zerolog()

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to Redis (optional, no-op when disabled)
	cacheClient, err := redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 5. Create repositories
	prices := store.NewPriceRepository(db.Pool)
	predictions := store.NewPredictionRepository(db.Pool)
	performance := store.NewPerformanceRepository(db.Pool)
	validations := store.NewValidationRepository(db.Pool)
	runs := store.NewRunRepository(db.Pool)
	alerts := store.NewAlertRepository(db.Pool)

	// 6. Create vendor client and collector
	vendor := marketdata.NewClient(marketdata.ClientConfig{
		BaseURL:        cfg.MarketData.BaseURL,
		APIKey:         cfg.MarketData.APIKey,
		RequestsPerSec: float64(cfg.MarketData.RequestsPerSec),
		Timeout:        cfg.MarketData.Timeout,
	}, zl)
	collector := marketdata.NewCollector(vendor, prices, runs, marketdata.CollectorConfig{
		Instruments: cfg.Pipeline.Instruments,
		DaysBack:    cfg.Pipeline.CollectionDaysBack,
	}, zl)

	// 7. Create pipeline components
	validator := quality.New(prices, quality.Config{
		PrimaryInstrument:     cfg.Pipeline.PrimaryInstrument,
		Instruments:           cfg.Pipeline.Instruments,
		FreshnessMaxDays:      cfg.Pipeline.FreshnessMaxDays,
		MissingnessWindowDays: cfg.Pipeline.MissingnessWindowDays,
		MissingnessMaxPct:     cfg.Pipeline.MissingnessMaxPct,
		AnomalyWindowDays:     cfg.Pipeline.AnomalyWindowDays,
		AnomalyMaxMovePct:     cfg.Pipeline.AnomalyMaxMovePct,
	}, zl)

	predictor := predict.New(prices, predictions, model.NewRegistry(), predict.Config{
		Instrument:     cfg.Pipeline.PrimaryInstrument,
		HorizonDays:    cfg.Pipeline.HorizonDays,
		HistoryDays:    cfg.Pipeline.HistoryDays,
		EnsembleQuorum: cfg.Pipeline.EnsembleQuorum,
	}, zl)

	reconciler := predict.NewReconciler(prices, predictions, cfg.Pipeline.PrimaryInstrument, zl)

	evaluator := evaluate.New(prices, predictions, performance, evaluate.Config{
		Instrument: cfg.Pipeline.PrimaryInstrument,
		WindowDays: cfg.Pipeline.EvaluationWindowDays,
		MinSamples: cfg.Pipeline.MinSamples,
	}, zl)

	// 8. Create notification channels
	notifiers := []notify.Notifier{notify.NewLogNotifier(zl)}
	if cfg.Notify.TelegramToken != "" {
		telegram, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		notifiers = append(notifiers, telegram)
	}
	if cfg.Notify.SMTPHost != "" {
		notifiers = append(notifiers, notify.NewEmail(notify.EmailConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPFrom,
			Password: cfg.Notify.SMTPPassword,
			From:     cfg.Notify.SMTPFrom,
			To:       cfg.Notify.SMTPRecipients(),
		}))
	}

	engine := alert.New(prices, performance, runs, alerts, notifiers, alert.Config{
		PrimaryInstrument: cfg.Pipeline.PrimaryInstrument,
		StalenessMaxDays:  cfg.Pipeline.StalenessMaxDays,
		MAPEWarnPct:       cfg.Pipeline.MAPEWarnPct,
		MissingnessMaxPct: cfg.Pipeline.MissingnessMaxPct,
	}, zl)

	// 9. Create websocket hub and orchestrator
	var hub *api.Hub
	var sink pipeline.EventSink
	if withServer {
		hub = api.NewHub(log)
		sink = hub
	}

	orchestrator := pipeline.New(runs, validations, validator, predictor, reconciler,
		evaluator, engine, sink, pipeline.Config{
			RunTimeout:        cfg.Pipeline.RunTimeout,
			MaxRetries:        cfg.Pipeline.MaxRetries,
			RetryInitialDelay: cfg.Pipeline.RetryInitialDelay,
		}, zl)

	// 10. Create backup manager
	backupMgr := backup.New(backup.PgDump{DatabaseURL: cfg.Database.URL}, runs, backup.Config{
		Dir:    cfg.Backup.Dir,
		Retain: cfg.Backup.Retain,
	}, zl)

	d := &deps{
		cfg:          cfg,
		log:          log,
		db:           db,
		cache:        cacheClient,
		collector:    collector,
		validator:    validator,
		predictor:    predictor,
		reconciler:   reconciler,
		evaluator:    evaluator,
		orchestrator: orchestrator,
		backupMgr:    backupMgr,
		hub:          hub,
	}

	// 11. Create API server
	if withServer {
		marketHandler := handlers.NewMarketHandler(prices,
			redis.NewCache(cacheClient, "cuprum"), cfg.Pipeline.Instruments, log)
		forecastHandler := handlers.NewForecastHandler(predictions, performance, log)
		opsHandler := handlers.NewOpsHandler(runs, validations, alerts, log)
		router := api.NewRouter(marketHandler, forecastHandler, opsHandler, hub, log)
		d.server = api.New(cfg, log, router)
	}

	// 12. Create scheduler and register jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewCollectionJob(collector, cfg, log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewPipelineJob(orchestrator, cfg, log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewBackupJob(backupMgr, cfg, log)); err != nil {
		return nil, err
	}
	d.scheduler = sched

	return d, nil
}

// shutdownTimeout bounds graceful shutdown on interrupt
const shutdownTimeout = 15 * time.Second
