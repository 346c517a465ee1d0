// server runs the DigiCheese auth API over HTTP, plus an optional gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc/health"

	"digicheese/backend/internal/audit"
	audithandler "digicheese/backend/internal/audit/handler"
	auditrepo "digicheese/backend/internal/audit/repository"
	"digicheese/backend/internal/config"
	"digicheese/backend/internal/db"
	healthhandler "digicheese/backend/internal/health/handler"
	identityhandler "digicheese/backend/internal/identity/handler"
	identityservice "digicheese/backend/internal/identity/service"
	"digicheese/backend/internal/logging"
	"digicheese/backend/internal/platform/rbac"
	"digicheese/backend/internal/policy/engine"
	"digicheese/backend/internal/ratelimit"
	"digicheese/backend/internal/revocation"
	"digicheese/backend/internal/security"
	"digicheese/backend/internal/server"
	"digicheese/backend/internal/server/middleware"
	"digicheese/backend/internal/telemetry"
	telemetryotel "digicheese/backend/internal/telemetry/otel"
	"digicheese/backend/internal/telemetry/producer"
	userhandler "digicheese/backend/internal/user/handler"
	"digicheese/backend/internal/user/repository"
	userservice "digicheese/backend/internal/user/service"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthWatchInterval = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: cfg.ServiceName})
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	metrics, err := telemetry.NewAuthMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	keys, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return fmt.Errorf("jwt keys: %w", err)
	}
	hasher, err := security.NewHasher(security.Argon2Params{
		MemoryKiB:   cfg.Argon2MemoryKiB,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
		KeyLength:   cfg.Argon2KeyLength,
	})
	if err != nil {
		return fmt.Errorf("hasher: %w", err)
	}
	codec := security.NewTokenCodec(keys, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())

	revoked := revocation.NewMemoryStore()
	if err := telemetry.RegisterRevocationGauge(otel.Meter(telemetry.MeterName), revoked.Len); err != nil {
		return fmt.Errorf("revocation gauge: %w", err)
	}
	go revoked.Run(ctx, cfg.SweepInterval(), func(removed, remaining int) {
		logger.Debug().Int("removed", removed).Int("remaining", remaining).Msg("revocation sweep")
	})

	var (
		repo       repository.Repository
		auditLog   auditrepo.Repository
		pinger     healthhandler.Pinger
		policy     healthhandler.PolicyChecker
		healthOpts []healthhandler.Option
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer conn.Close()
		repo = repository.NewPostgresRepository(conn)
		auditLog = auditrepo.NewPostgresRepository(conn)
		pinger = conn
	} else {
		if cfg.Env == "production" {
			return errors.New("DATABASE_URL is required when APP_ENV=production")
		}
		logger.Warn().Msg("DATABASE_URL not set; users are kept in memory and lost on restart")
		repo = repository.NewMemoryRepository()
		auditLog = auditrepo.NewMemoryRepository(0)
	}

	events := telemetry.Multi(
		telemetryotel.NewEventEmitter(providers.LoggerProvider),
		audit.NewRecorder(auditLog),
	)
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaEventsTopic); kp != nil {
		defer kp.Close()
		events = telemetry.Multi(events, kp)
		logger.Info().Strs("brokers", cfg.KafkaBrokersList()).Str("topic", cfg.KafkaEventsTopic).Msg("publishing auth events to Kafka")
	}

	users := userservice.NewUserService(repo, hasher)
	if cfg.DatabaseURL == "" && cfg.SeedAdminPassword != "" {
		if _, err := users.EnsureAdmin(ctx, cfg.SeedAdminUsername, cfg.SeedAdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		logger.Info().Str("username", cfg.SeedAdminUsername).Msg("in-memory admin seeded")
	}

	var limiter ratelimit.LoginLimiter = ratelimit.Disabled{}
	switch {
	case cfg.LoginMaxAttempts == 0:
		logger.Warn().Msg("login throttling disabled")
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		rl := ratelimit.NewRedis(rdb, cfg.LoginMaxAttempts, cfg.LockoutWindow())
		limiter = rl
		healthOpts = append(healthOpts, healthhandler.WithCheck("redis", rl.Ping))
	default:
		ml := ratelimit.NewMemory(cfg.LoginMaxAttempts, cfg.LockoutWindow())
		limiter = ml
		go ml.Run(ctx, cfg.LockoutWindow(), func(removed, remaining int) {
			logger.Debug().Int("removed", removed).Int("remaining", remaining).Msg("login limiter sweep")
		})
	}

	var decider rbac.Decider = rbac.IntersectionDecider{}
	if cfg.AuthzEngine == config.AuthzEngineRego {
		var source string
		if cfg.AuthzPolicyFile != "" {
			if source, err = engine.LoadPolicyFile(cfg.AuthzPolicyFile); err != nil {
				return err
			}
		}
		rd, err := engine.NewRegoDecider(ctx, source)
		if err != nil {
			return err
		}
		decider, policy = rd, rd
	}
	decider = rbac.Observed(decider, metrics, events)

	auth := identityservice.NewAuthService(repo, hasher, codec, revoked,
		identityservice.WithLimiter(limiter),
		identityservice.WithMetrics(metrics),
		identityservice.WithEvents(events),
	)
	resolver := middleware.NewResolver(codec, revoked,
		middleware.WithLenientPaths(server.LenientPaths...),
		middleware.WithMetrics(metrics),
		middleware.WithEvents(events),
	)
	checks := healthhandler.NewServer(pinger, policy, healthOpts...)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Deps{
		Logger:   logger,
		Resolver: resolver,
		Decider:  decider,
		Auth:     identityhandler.NewAuthHandler(auth, cfg.CookieSecure),
		Users:    userhandler.NewUserHandler(users),
		Audit:    audithandler.NewAuditHandler(auditLog),
		Health:   checks,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("authz", cfg.AuthzEngine).Strs("checks", checks.Names()).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		hs := health.NewServer()
		grpcSrv := server.NewGRPCServer(hs)
		defer grpcSrv.GracefulStop()
		go checks.WatchGRPC(ctx, hs, healthWatchInterval)
		go func() {
			logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health server listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("server failed, shutting down")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("HTTP server stopped")
	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		logger.Warn().Msg("auth events still in flight at shutdown")
	}
	return serveErr
}
