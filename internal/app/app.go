package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cardscan/internal/config"
	"cardscan/internal/ingest"
	"cardscan/internal/logger"
	"cardscan/internal/repository/sqlite"
	"cardscan/internal/route"
	"cardscan/internal/service/fraud"
	"cardscan/internal/service/imaging"
	"cardscan/internal/service/scan"
	"cardscan/internal/service/storage"
	"cardscan/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	logger    *logger.Logger
	db        *sqlite.DB
	scanRepo  *sqlite.ScanRepository
	frameRepo *sqlite.FrameRepository
	hub       *websocket.HubService
	manager   *scan.Manager
}

func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	scanRepo := sqlite.NewScanRepository(db)
	frameRepo := sqlite.NewFrameRepository(db)

	images := imaging.NewService(log)
	hub := websocket.NewHubService(log, images)
	archive := storage.NewArchiveService(cfg, log, scanRepo, frameRepo, fraud.NopVerifier{})

	manager := scan.NewManager(cfg, log, scan.Deps{
		Verifier: archive,
		Debug:    hub,
		Cropper:  images,
		Notifier: hub,
	})

	return &App{
		config:    cfg,
		logger:    log,
		db:        db,
		scanRepo:  scanRepo,
		frameRepo: frameRepo,
		hub:       hub,
		manager:   manager,
	}, nil
}

// Run serves until SIGINT or SIGTERM, then shuts the server and background
// services down.
func (a *App) Run() error {
	defer a.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.hub.Run(ctx)
	go a.manager.Run(ctx)

	if a.config.IngestEndpoint != "" {
		if err := a.runIngest(ctx); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: route.SetupRoutes(a.manager, a.hub, a.config, a.logger, a.scanRepo, a.frameRepo),
	}

	a.logger.Info("Card scan server listening on :%d (profile %s, flash flow %t, frames %s)",
		a.config.Port, a.config.DefaultProfile, a.config.FlashFlowEnabled, a.config.FrameDirectory)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runIngest feeds pipeline messages into the session manager.
func (a *App) runIngest(ctx context.Context) error {
	messages, err := ingest.Stream(ctx, a.config.IngestEndpoint, a.config.IngestLogEvery, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start ingest: %w", err)
	}

	go func() {
		for msg := range messages {
			if _, err := a.manager.HandleMessage(ctx, msg, a.config.FlashFlowEnabled); err != nil {
				a.logger.Warning("Ingest %s message for %s: %v", msg.Type, msg.SessionID, err)
			}
		}
	}()
	return nil
}
