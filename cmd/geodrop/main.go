// Package main запускает HTTP-сервер сервиса геодроп.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/geodrop-system/internal/anchor"
	"github.com/mmeshcher/geodrop-system/internal/catalog"
	"github.com/mmeshcher/geodrop-system/internal/config"
	"github.com/mmeshcher/geodrop-system/internal/gate"
	"github.com/mmeshcher/geodrop-system/internal/handler"
	"github.com/mmeshcher/geodrop-system/internal/media"
	"github.com/mmeshcher/geodrop-system/internal/middleware"
	"github.com/mmeshcher/geodrop-system/internal/notify"
	"github.com/mmeshcher/geodrop-system/internal/repository"
	"github.com/mmeshcher/geodrop-system/internal/service"
)

// anchorTTL ограничивает возраст последней координаты пользователя.
const anchorTTL = 2 * time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	cat, err := catalog.Load(cfg.CatalogPath, time.Now().UnixNano())
	if err != nil {
		sugar.Fatalw("catalog initialization error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var uploader service.MediaUploader
	if cfg.MediaEndpoint != "" {
		up, err := media.NewUploader(ctx, media.Config{
			Endpoint:   cfg.MediaEndpoint,
			Bucket:     cfg.MediaBucket,
			AccessKey:  cfg.MediaAccessKey,
			SecretKey:  cfg.MediaSecretKey,
			CDNBaseURL: cfg.MediaCDNBaseURL,
		})
		if err != nil {
			sugar.Fatalw("media storage initialization error", "error", err.Error())
		}
		uploader = up
	}

	anchors := anchor.NewSource(anchorTTL)
	submissionGate := gate.New(gate.DefaultTTL)
	notifier := notify.NewClient(cfg.NotifyWebhookURL)

	svc := service.NewService(repo, anchors, cat, submissionGate, uploader, notifier, logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая очистка просроченных аренд гейта
	submissionGate.StartSweeper(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting geodrop server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
