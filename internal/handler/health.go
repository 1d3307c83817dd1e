package handler

import (
	"net/http"

	"cardscan/internal/logger"
	"cardscan/internal/service/scan"
	"cardscan/internal/service/websocket"
)

// HealthHandler reports liveness with the number of live scans and viewers.
func HealthHandler(manager *scan.Manager, hub *websocket.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, map[string]interface{}{
			"status":   "ok",
			"sessions": manager.Count(),
			"viewers":  hub.GetClientCount(),
		})
	}
}
