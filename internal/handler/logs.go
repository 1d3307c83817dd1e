package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"cardscan/internal/config"
	"cardscan/internal/logger"
)

// logFiles maps the level in the URL to the file the logger writes it to.
var logFiles = map[string]string{
	"info":    "info.log",
	"warning": "warning.log",
	"error":   "error.log",
}

// ShowLogsHandler serves the log file of one level as text/plain.
func ShowLogsHandler(cfg *config.Config, level string) http.HandlerFunc {
	filename := logFiles[level]
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := filepath.Join(cfg.LogDirectory, filename)

		if _, err := os.Stat(filePath); filename == "" || os.IsNotExist(err) {
			http.Error(w, "Log file not found: "+level, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filePath)
	}
}

// ClearLogsHandler truncates the log file of one level.
func ClearLogsHandler(logger *logger.Logger, level string) http.HandlerFunc {
	filename := logFiles[level]
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if filename == "" {
			http.NotFound(w, r)
			return
		}
		logger.CleanLogs(filename)
		w.WriteHeader(http.StatusNoContent)
	}
}
