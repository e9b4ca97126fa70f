package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/api"
	"github.com/victorgomez09/keygate/internal/auth"
	"github.com/victorgomez09/keygate/internal/blocklist"
	"github.com/victorgomez09/keygate/internal/config"
	"github.com/victorgomez09/keygate/internal/events"
	"github.com/victorgomez09/keygate/internal/license"
	"github.com/victorgomez09/keygate/internal/logger"
	"github.com/victorgomez09/keygate/internal/middleware"
	"github.com/victorgomez09/keygate/internal/models"
	"github.com/victorgomez09/keygate/internal/notify"
	"github.com/victorgomez09/keygate/internal/store"
)

func main() {
	configPath := flag.String("config", "keygate.yaml", "path to config file")
	flag.Parse()

	// Secrets may live in a local .env during development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := store.NewSQLiteDB(cfg.Database.Path)
	if err != nil {
		zlog.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	bus := events.NewBus()

	licenseService := license.NewService(db, license.Config{
		DefaultRequestLimit: cfg.License.DefaultRequestLimit,
	}, bus, zlog)

	blocklistService := blocklist.NewService(db, bus, zlog)

	authService := auth.NewService(db, auth.Config{
		JWTSecret:        []byte(cfg.Auth.JWTSecret),
		TokenExpiry:      cfg.Auth.TokenExpiry,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockDuration:     cfg.Auth.LockDuration,
	}, bus, zlog)
	defer authService.Close()

	if err := bootstrapAdmin(db, authService, zlog); err != nil {
		zlog.Fatal("Failed to bootstrap admin user", zap.Error(err))
	}

	mailer, err := notify.NewMailer(cfg.SMTP, zlog)
	if err != nil {
		zlog.Fatal("Failed to initialize mailer", zap.Error(err))
	}

	gateAPI := api.New(api.Deps{
		Licenses:      licenseService,
		Blocklist:     blocklistService,
		Auth:          authService,
		Authenticator: middleware.NewAuthenticator(authService, zlog),
		SharedSecret:  middleware.NewSharedSecret(cfg.Auth.SharedSecretHeader, cfg.Auth.SharedSecret, zlog),
		Limits:        buildLimiters(cfg, zlog),
		BlockStage:    middleware.NewBlocklist(blocklistService, zlog),
		Throttle:      middleware.NewThrottle(cfg.Throttle.RequestsPerSecond, cfg.Throttle.Burst),
		Bus:           bus,
		Mailer:        mailer,
		AbuseTTL:      cfg.Abuse.BlockTTL,
		Logger:        zlog,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gateAPI.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		zlog.Info("Gate listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zlog.Warn("Shutdown signal received. Initializing graceful shutdown")
	case err := <-errChan:
		zlog.Fatal("Server error triggered shutdown", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal("Error during shutdown", zap.Error(err))
	}
	zlog.Info("Server shutdown completed")
}

// buildLimiters constructs the named route limiters once, backed by Redis
// when configured and process memory otherwise.
func buildLimiters(cfg *config.Keygate, zlog *zap.Logger) *middleware.Registry {
	var counters middleware.CounterStore
	if cfg.Redis.Addr != "" {
		counters = middleware.NewRedisCounters(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
		zlog.Info("Rate-limit counters backed by Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		counters = middleware.NewMemoryCounters()
		zlog.Info("Rate-limit counters held in process memory")
	}

	registry := middleware.NewRegistry()
	for name, limitCfg := range cfg.RateLimits {
		registry.Add(middleware.NewRateLimiter(name, limitCfg, counters, zlog))
		zlog.Info("Rate limiter configured",
			zap.String("name", name),
			zap.Int("max", limitCfg.Max),
			zap.Duration("window", limitCfg.Window))
	}
	return registry
}

// bootstrapAdmin creates the initial owner account on an empty database
// when KEYGATE_ADMIN_USER and KEYGATE_ADMIN_PASSWORD are set.
func bootstrapAdmin(db *store.SQLiteDB, authService *auth.Service, zlog *zap.Logger) error {
	username := os.Getenv("KEYGATE_ADMIN_USER")
	password := os.Getenv("KEYGATE_ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}

	if _, err := db.GetUserByUsername(username); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if _, err := authService.CreateUser(username, password, models.RoleOwner); err != nil {
		return err
	}

	zlog.Info("Bootstrap admin user created", zap.String("username", username))
	return nil
}
