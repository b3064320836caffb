package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"moviweb/internal/util"
	"moviweb/services/catalog/internal/app"
	"moviweb/services/catalog/internal/config"
	"moviweb/services/catalog/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Fatalf("catalog server: %v", err)
	}
}

// run owns every resource it opens and closes them before returning, so
// callers may exit on its error.
func run(ctx context.Context, cfg config.FileConfig) error {
	logger := util.InitLogger(cfg.LogLevel)
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		OMDbAPIKey:     cfg.OMDbAPIKey,
		OMDbBaseURL:    cfg.OMDbBaseURL,
		OMDbTimeout:    cfg.OMDbTimeout(),
		TrendingTitles: cfg.TrendingTitles,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer appCore.Close()
	if cfg.OMDbAPIKey == "" {
		logger.Warn("omdb api key not set; metadata lookups disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	} else {
		logger.Warn("redis not configured; search and metadata endpoints are not rate limited")
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Redis:                      redisClient,
		MetadataRateLimitPerMinute: cfg.MetadataRateLimitPerMinute,
		CORSAllowedOrigins:         cfg.CORSAllowedOrigins,
		TrustedProxies:             trustedProxies,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("catalog server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("catalog server stopped")
	return nil
}
