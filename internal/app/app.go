package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/trialworks/ars-backend/internal/data/db"
	apihttp "github.com/trialworks/ars-backend/internal/http"
	"github.com/trialworks/ars-backend/internal/observability"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"github.com/trialworks/ars-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Hub      *realtime.SSEHub

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "ars-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	if err := db.EnsureVersioningIndexes(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres indexes: %w", err)
	}
	if metrics != nil {
		metrics.RegisterPostgresCollector(log, theDB)
	}

	hub := realtime.NewSSEHub(log)

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, hub)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, serviceset, hub)
	router := wireRouter(log, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Hub:          hub,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background pieces: the SLO evaluator, the standalone
// metrics listener, and the redis forwarder when one is configured.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if metrics := observability.Current(); metrics != nil {
		metrics.StartSLOEvaluator(ctx, a.Log)
		metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}

	if a.Services.Bus != nil {
		if err := a.Services.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
			a.Log.Error("redis forwarder failed to start", "error", err)
		}
	}
}

// Run blocks serving the API until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	srv := &apihttp.Server{Engine: a.Router}
	a.Log.Info("API listening", "addr", a.Cfg.HTTPAddr)
	return srv.Run(ctx, a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Bus != nil {
		_ = a.Services.Bus.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
