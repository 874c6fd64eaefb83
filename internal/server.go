package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2beens/gymsheets/internal/assistant"
	"github.com/2beens/gymsheets/internal/auth"
	"github.com/2beens/gymsheets/internal/config"
	"github.com/2beens/gymsheets/internal/db"
	"github.com/2beens/gymsheets/internal/documents"
	"github.com/2beens/gymsheets/internal/middleware"
	"github.com/2beens/gymsheets/internal/misc"
	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/workouts"
	"github.com/2beens/gymsheets/internal/workouts/pgstore"
)

const (
	sessionsCleanupInterval = 8 * time.Hour
	maxRequestDrainBytes    = 256 << 10
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client

	authService     *auth.Service
	sessionChecker  *auth.SessionChecker
	workoutsService *workouts.Service
	recordStore     workouts.RecordStore
	extractor       *assistant.Extractor
	documentsStore  documents.Store

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	RedisPassword           string
	PostgresPassword        string
	OpenAIApiKey            string
	MinioAccessKey          string
	MinioSecretKey          string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         cfg.PostgresHost,
		DBPort:         cfg.PostgresPort,
		DBName:         cfg.PostgresDBName,
		DBPassword:     params.PostgresPassword,
		MaxConns:       cfg.PostgresMaxConns,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	applied, err := db.ApplyMigrations(ctx, dbPool)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	log.Debugf("db migrations applied: %d", applied)

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": cfg.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("backend", "gymsheets", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "gymsheets-backend", rdb)
	if err != nil {
		return nil, err
	}

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	if params.OpenAIApiKey == "" {
		log.Warnln("openai api key not set, extraction and advice calls will fail")
	}
	aiClient := assistant.NewClient(
		cfg.OpenAIBaseURL,
		params.OpenAIApiKey,
		cfg.AIRequestTimeout.Duration,
		tracedHttpClient,
	)

	recordStore := pgstore.New(dbPool)
	workoutsService := workouts.NewService(
		recordStore,
		assistant.NewAdvisor(aiClient, cfg.AdviceModel, metricsManager),
		metricsManager,
	)

	documentsStore, err := newDocumentsStore(ctx, cfg, params)
	if err != nil {
		return nil, fmt.Errorf("new documents store: %w", err)
	}

	authService := auth.NewAuthService(
		cfg.SessionTTL.Duration,
		rdb,
		auth.NewAccountsRepo(dbPool),
		workoutsService,
	)

	return &Server{
		config:      cfg,
		versionInfo: params.VersionInfo,
		dbPool:      dbPool,
		redisClient: rdb,

		authService:     authService,
		sessionChecker:  auth.NewSessionChecker(cfg.SessionTTL.Duration, rdb),
		workoutsService: workoutsService,
		recordStore:     recordStore,
		extractor:       assistant.NewExtractor(aiClient, cfg.ExtractionModel, cfg.ExtractionCacheSizeMB, metricsManager),
		documentsStore:  documentsStore,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func newDocumentsStore(ctx context.Context, cfg *config.Config, params NewServerParams) (documents.Store, error) {
	switch cfg.DocumentsBackend {
	case config.DocumentsBackendMinio:
		log.Debugf("documents stored in minio bucket [%s] at %s", cfg.MinioBucket, cfg.MinioEndpoint)
		return documents.NewMinioStore(ctx, documents.MinioStoreParams{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: params.MinioAccessKey,
			SecretKey: params.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		log.Debugf("documents stored on disk at [%s]", cfg.DocumentsDiskPath)
		return documents.NewDiskStore(cfg.DocumentsDiskPath)
	}
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("gymsheets-router"))

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)

	miscHandler := misc.NewHandler(s.versionInfo)
	miscHandler.SetupRoutes(r)

	// rate limit the auth endpoints to prevent abuse
	authRouter := r.PathPrefix("/a").Subrouter()
	auth.NewHandler(s.authService).SetupRoutes(authRouter)
	authRouter.Use(middleware.RateLimit(
		reqRateLimiter,
		"auth",
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	))

	workoutsHandler := workouts.NewHandler(
		s.workoutsService,
		s.extractor,
		workouts.NewProjectionFactory(s.recordStore, s.config.ProjectorLoadTimeout.Duration, s.metricsManager),
		workouts.DefaultStreamKeepAlive,
	)
	workoutsHandler.SetupRoutes(r, reqRateLimiter, s.config.AIRateLimitAllowedPerMin, s.metricsManager)

	documentsHandler := documents.NewHandler(s.documentsStore, int64(s.config.MaxDocumentSizeMB)<<20)
	documentsHandler.SetupRoutes(r)

	// preflight requests are answered by the cors and auth middlewares
	r.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Name("preflight")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "DELETE").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.sessionChecker)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest(maxRequestDrainBytes))

	return r
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router := s.routerSetup()

	// streams never go idle, they end when the base context is cancelled on shutdown
	baseCtx, cancelBase := context.WithCancel(ctx)
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
	s.httpServer.RegisterOnShutdown(cancelBase)

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	go s.cleanSessionsPeriodically(ctx, sessionsCleanupInterval)

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) cleanSessionsPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.authService.ScanAndClean(ctx)
		}
	}
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown http server: %s", err)
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown metrics http server: %s", err)
		}
		log.Warnln("metrics server shut down")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}
