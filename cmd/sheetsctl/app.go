package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2beens/gymsheets/internal/assistant"
	"github.com/2beens/gymsheets/internal/config"
	"github.com/2beens/gymsheets/internal/db"
	"github.com/2beens/gymsheets/internal/logging"
	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/workouts"
	"github.com/2beens/gymsheets/internal/workouts/pgstore"
)

type sheetsService interface {
	ListSheets(ctx context.Context, owner string, onlyValid bool) ([]workouts.Sheet, error)
	ListHistoryLogs(ctx context.Context, owner string) ([]workouts.HistoryLog, error)
	Activate(ctx context.Context, owner, sheetID string) error
	ImportBatch(ctx context.Context, owner string, drafts []workouts.Draft, doc workouts.SourceDocument) (*workouts.ImportResult, error)
	LinkOrphans(ctx context.Context, owner, historyLogID string) (workouts.LinkResult, error)
	MigrateOwnership(ctx context.Context, owner string) (int, error)
}

type draftExtractor interface {
	Extract(ctx context.Context, text string) ([]workouts.Draft, error)
}

// app holds what the commands run against. Tests fill it in directly,
// otherwise connect builds it from the config file and env.
type app struct {
	env        string
	configPath string
	envFile    string
	logLevel   string

	service   sheetsService
	extractor draftExtractor
	close     func()
}

func (a *app) connect(ctx context.Context) error {
	if a.service != nil {
		return nil
	}

	if err := godotenv.Load(a.envFile); err != nil {
		log.Debugf("no env file loaded [%s]: %s", a.envFile, err)
	}

	cfg, err := config.Load(a.env, a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    a.logLevel,
		Environment: cfg.Environment,
	})

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:     cfg.PostgresHost,
		DBPort:     cfg.PostgresPort,
		DBName:     cfg.PostgresDBName,
		DBPassword: os.Getenv("GYMSHEETS_POSTGRES_PASS"),
		MaxConns:   cfg.PostgresMaxConns,
	})
	if err != nil {
		return fmt.Errorf("db pool: %w", err)
	}
	if err := dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.ApplyMigrations(ctx, dbPool); err != nil {
		dbPool.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}

	aiClient := assistant.NewClient(
		cfg.OpenAIBaseURL,
		os.Getenv("GYMSHEETS_OPENAI_API_KEY"),
		cfg.AIRequestTimeout.Duration,
		&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	)

	// counted but never scraped, the cli is short lived
	metricsManager := metrics.NewManager("sheetsctl", "cli", prometheus.NewRegistry())
	a.service = workouts.NewService(
		pgstore.New(dbPool),
		assistant.NewAdvisor(aiClient, cfg.AdviceModel, metricsManager),
		metricsManager,
	)
	a.extractor = assistant.NewExtractor(aiClient, cfg.ExtractionModel, cfg.ExtractionCacheSizeMB, metricsManager)
	a.close = dbPool.Close
	return nil
}

func (a *app) shutdown() {
	if a.close != nil {
		a.close()
	}
}

var errNoExtractor = errors.New("extraction not available")
