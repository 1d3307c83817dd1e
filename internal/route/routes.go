package route

import (
	"net/http"

	"cardscan/internal/config"
	"cardscan/internal/handler"
	"cardscan/internal/logger"
	"cardscan/internal/middleware"
	"cardscan/internal/repository"
	"cardscan/internal/service/scan"
	"cardscan/internal/service/websocket"
)

// SetupRoutes registers the scan, viewer, archive and log endpoints and wraps
// the mux with logging and API key authentication.
func SetupRoutes(manager *scan.Manager, hub *websocket.HubService, cfg *config.Config, logger *logger.Logger,
	scanRepo repository.ScanRepository, frameRepo repository.FrameRepository) http.Handler {
	mux := http.NewServeMux()

	// Scanning
	mux.HandleFunc("/api/scan", handler.ScanWebsocketHandler(manager, cfg, logger))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hub, logger))

	// Archive
	mux.HandleFunc("/api/sessions", handler.GetSessionsHandler(cfg, logger, scanRepo))
	mux.HandleFunc("/api/sessions/frames", handler.GetSessionFramesHandler(logger, scanRepo, frameRepo))
	mux.HandleFunc("/api/sessions/delete", handler.DeleteSessionHandler(cfg, logger, scanRepo))
	mux.HandleFunc("/api/frames/view", handler.ViewFrameHandler(cfg))

	// Log endpoints
	for _, level := range []string{"info", "warning", "error"} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(cfg, level))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, level))
	}

	mux.HandleFunc("/healthz", handler.HealthHandler(manager, hub, logger))

	return middleware.LoggingMiddleware(logger)(middleware.AuthMiddleware(cfg.APIKey)(mux))
}
