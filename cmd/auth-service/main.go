package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/bytebot-auth/internal/cache"
	"github.com/pribylovaa/bytebot-auth/internal/config"
	"github.com/pribylovaa/bytebot-auth/internal/events"
	api "github.com/pribylovaa/bytebot-auth/internal/http"
	"github.com/pribylovaa/bytebot-auth/internal/http/handlers"
	"github.com/pribylovaa/bytebot-auth/internal/metrics"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/password"
	"github.com/pribylovaa/bytebot-auth/internal/service"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
	"github.com/pribylovaa/bytebot-auth/internal/storage/memory"
	"github.com/pribylovaa/bytebot-auth/internal/storage/mongo"
	"github.com/pribylovaa/bytebot-auth/internal/storage/postgres"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("config_invalid", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("starting application",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("broker", cfg.Broker.Driver),
	)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	hasher := password.New(cfg.Auth.BcryptCost)

	// Подключение к хранилищу c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg, hasher)
	dbCancel()
	if err != nil {
		log.Error("storage_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer str.Close()
	log.Info("storage_connected", slog.String("driver", cfg.Storage.Driver))

	redisCtx, redisCancel := context.WithTimeout(rootCtx, 5*time.Second)
	rdb, err := cache.NewRedisClient(redisCtx, cfg.Redis.URL)
	redisCancel()
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()
	log.Info("redis_connected")

	pub, err := events.New(cfg.Broker, log)
	if err != nil {
		log.Error("broker_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("broker_close_failed", slog.String("err", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Сервис.
	svc := service.New(service.Deps{
		Storage:   str,
		Registry:  cache.NewRegistry(rdb),
		Profiles:  cache.NewProfileCache(rdb, cfg.Redis.ProfileTTL),
		Publisher: pub,
		Hasher:    hasher,
		Metrics:   m,
		Auth:      cfg.Auth,
		MFA:       cfg.MFA,
	})
	log.Info("service_initialized")

	var ready int32 // 0: not ready; 1: ready
	opsSrv := newOpsServer(cfg.Ops.Addr(), reg, &ready)

	go func() {
		log.Info("ops_listen_start", slog.String("addr", opsSrv.Addr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops_serve_failed", slog.String("err", err.Error()))
		}
	}()

	router := api.NewRouter(svc, api.Options{
		Logger:          log,
		Metrics:         m,
		Timeout:         cfg.Timeouts.Service,
		BasePath:        cfg.HTTP.BasePath,
		PresenceTimeout: cfg.Timeouts.Presence,
		CORSOrigins:     cfg.CORS.Origins,
		Cookie: handlers.CookieOptions{
			Name:   cfg.Cookie.Name,
			Path:   cfg.Cookie.Path,
			Domain: cfg.Cookie.Domain,
			Secure: cfg.Env == envProd,
			MaxAge: cfg.Auth.RefreshTokenTTL,
		},
	})

	apiSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Фоновая очистка просроченных refresh-токенов.
	startRefreshJanitor(rootCtx, svc, log, cfg.Auth.RefreshJanitorPeriod)

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	// Снимаем ready, чтобы балансировщик перестал слать трафик.
	atomic.StoreInt32(&ready, 0)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	}
	_ = opsSrv.Shutdown(shutdownCtx)

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// openStorage подключает хранилище учётных записей по storage.driver.
func openStorage(ctx context.Context, cfg *config.Config, hasher models.PasswordHasher) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageMongo:
		return mongo.New(ctx, cfg.Mongo.URL, hasher)
	case config.StoragePostgres:
		return postgres.New(ctx, cfg.Postgres.URL, hasher)
	case config.StorageMemory:
		return memory.New(hasher), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newOpsServer собирает служебный HTTP: /livez, /healthz (флаг готовности) и /metrics.
func newOpsServer(addr string, reg *prometheus.Registry, ready *int32) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// refreshPurger: то, что нужно janitor-у от сервиса.
type refreshPurger interface {
	PurgeExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// startRefreshJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные refresh-токены из наборов пользователей.
func startRefreshJanitor(ctx context.Context, p refreshPurger, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := p.PurgeExpiredRefreshTokens(ctx)
				if err != nil {
					log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
					continue
				}
				if n > 0 {
					log.Info("refresh_janitor_purged", slog.Int64("count", n))
				}
			}
		}
	}()
}
