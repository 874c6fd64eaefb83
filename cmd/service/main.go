package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymsheets/internal"
	"github.com/2beens/gymsheets/internal/config"
	"github.com/2beens/gymsheets/internal/logging"
	"github.com/2beens/gymsheets/pkg"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with the secrets")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("no env file loaded [%s]: %s\n", *envFile, err)
	}

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    cfg.LogFormatJSON,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		SentryServerName: "gymsheets-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	redisPassword := os.Getenv("GYMSHEETS_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use GYMSHEETS_REDIS_PASS")
	}

	postgresPassword := os.Getenv("GYMSHEETS_POSTGRES_PASS")
	if postgresPassword == "" {
		log.Warnln("postgres password not set. use GYMSHEETS_POSTGRES_PASS")
	}

	openAIApiKey := os.Getenv("GYMSHEETS_OPENAI_API_KEY")
	if openAIApiKey == "" {
		log.Errorf("openai api key not set. use GYMSHEETS_OPENAI_API_KEY")
	}

	minioAccessKey := os.Getenv("GYMSHEETS_MINIO_ACCESS_KEY")
	minioSecretKey := os.Getenv("GYMSHEETS_MINIO_SECRET_KEY")
	if cfg.DocumentsBackend == config.DocumentsBackendMinio && (minioAccessKey == "" || minioSecretKey == "") {
		log.Errorf("minio credentials not set. use GYMSHEETS_MINIO_ACCESS_KEY and GYMSHEETS_MINIO_SECRET_KEY")
	}

	if cfg.DocumentsBackend == config.DocumentsBackendDisk {
		if err := os.MkdirAll(cfg.DocumentsDiskPath, 0o755); err != nil {
			log.Fatalf("create documents dir: %s", err)
		}
		exists, err := pkg.PathExists(cfg.DocumentsDiskPath, true)
		if err != nil || !exists {
			log.Fatalf("documents dir not usable [%s]: %v", cfg.DocumentsDiskPath, err)
		}
		log.Printf("documents dir: %s", cfg.DocumentsDiskPath)
	}

	if otelServiceName := os.Getenv("OTEL_SERVICE_NAME"); otelServiceName == "" {
		log.Warnln("OTEL_SERVICE_NAME env var not set")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			VersionInfo:             versionInfo,
			RedisPassword:           redisPassword,
			PostgresPassword:        postgresPassword,
			OpenAIApiKey:            openAIApiKey,
			MinioAccessKey:          minioAccessKey,
			MinioSecretKey:          minioSecretKey,
			HoneycombTracingEnabled: honeycombEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(ctx, cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return pkg.BytesToString(stdout), nil
}
