package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"servivent/backend/internal/auth"
	"servivent/backend/internal/cache"
	"servivent/backend/internal/config"
	"servivent/backend/internal/db"
	httpapi "servivent/backend/internal/http"
	"servivent/backend/internal/logging"
	"servivent/backend/internal/service"
	"servivent/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(os.Stderr, "info", "console")
		fallback.Fatal().Err(err).Msg("config error")
	}
	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database error")
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}

	var prices cache.PriceCache = cache.NoopPriceCache{}
	if cfg.CacheEnabled() {
		redisCache := cache.NewRedisPriceCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis error")
		}
		defer redisCache.Close()
		prices = redisCache
		log.Info().Str("addr", cfg.RedisAddr).Msg("price cache enabled")
	}

	st := postgres.New(pool, log)
	svc := service.New(st, prices, log)
	authManager := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL, st)
	handler := httpapi.NewHandler(svc, authManager, log)
	router := httpapi.NewRouter(handler, authManager, log, cfg.RequestTimeout)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		if closeErr := server.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("force close failed")
		}
	}
}
