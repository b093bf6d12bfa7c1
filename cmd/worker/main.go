package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-polis/internal/config"
	"github.com/noah-isme/backend-polis/internal/lock"
	"github.com/noah-isme/backend-polis/internal/obs"
	"github.com/noah-isme/backend-polis/internal/proposal"
	"github.com/noah-isme/backend-polis/internal/rater"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "polis"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	svc := &proposal.Service{
		Store:   proposal.Store{R: redisClient, TTL: cfg.SessionTTL},
		Locks:   lock.Locker{R: redisClient},
		LockTTL: cfg.LockTTL,
		Logger:  logger,
	}

	var raterClient *rater.Client
	if cfg.RaterBaseURL != "" {
		raterClient, err = rater.New(cfg.RaterBaseURL, cfg.RaterTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise rater client")
		}
		logger.Info().Str("rater_url", cfg.RaterBaseURL).Msg("using external rating service")
	}

	worker := &proposal.CalculationWorker{
		Service: svc,
		Rater:   raterClient,
		Logger:  logger,
	}

	taskConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	srv := asynq.NewServer(taskConn, asynq.Config{
		Concurrency: cfg.CalcConcurrency,
		Queues:      map[string]int{cfg.CalcQueue: 1},
		Logger:      asynqLogger{logger},
	})
	mux := asynq.NewServeMux()
	worker.Register(mux)

	logger.Info().Str("queue", cfg.CalcQueue).Int("concurrency", cfg.CalcConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	<-ctx.Done()
	logger.Info().Msg("worker draining")
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

// asynqLogger adapts zerolog to asynq's logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
