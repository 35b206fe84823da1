package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/andrianfaa/Studi-Bareng/internal/app/migrate"
	httpx "github.com/andrianfaa/Studi-Bareng/internal/http"
	"github.com/andrianfaa/Studi-Bareng/internal/repository"
	"github.com/andrianfaa/Studi-Bareng/internal/repository/memory"
	"github.com/andrianfaa/Studi-Bareng/internal/repository/postgres"
	"github.com/andrianfaa/Studi-Bareng/internal/service/auth"
	"github.com/andrianfaa/Studi-Bareng/internal/service/post"
	"github.com/andrianfaa/Studi-Bareng/internal/ws"
	"github.com/andrianfaa/Studi-Bareng/pkg/config"
	"github.com/andrianfaa/Studi-Bareng/pkg/crypto"
	jwtpkg "github.com/andrianfaa/Studi-Bareng/pkg/jwt"
	"github.com/andrianfaa/Studi-Bareng/pkg/logger"
	"github.com/andrianfaa/Studi-Bareng/pkg/telemetry"
)

const serviceName = "studi-api"

type store interface {
	repository.UserRepository
	repository.PostRepository
	Ping(context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	hasher, err := crypto.NewHasher(cfg.PasswordSecret)
	if err != nil {
		return err
	}
	codec, err := jwtpkg.NewCodec(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	authSvc := auth.New(repo, hasher, codec, log)
	postSvc := post.New(repo, hub, log, cfg.PostTTL)
	go post.NewSweeper(repo, log, cfg.PostSweepInterval).Run(ctx)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Dependencies{
		Logger:         log,
		Auth:           authSvc,
		Posts:          postSvc,
		Hub:            hub,
		Limiter:        limiter,
		DBHealth:       repo.Ping,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: proxies,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           telemetry.Middleware(serviceName, router.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "storage", cfg.StorageDriver, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

// openStore selects the storage driver. The postgres driver applies pending
// migrations before serving.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("configure migrations: %w", err)
	}
	if err := runner.Ping(ctx); err != nil {
		runner.Close()
		return nil, nil, err
	}
	if err := runner.Ensure(ctx); err != nil {
		runner.Close()
		return nil, nil, err
	}
	return postgres.New(pool), runner.Close, nil
}
