package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cardscan/internal/config"
	"cardscan/internal/dto"
	"cardscan/internal/logger"
	"cardscan/internal/model"
	"cardscan/internal/repository"
)

// GetSessionsHandler returns a filtered, paginated list of archived scans.
func GetSessionsHandler(cfg *config.Config, logger *logger.Logger, scanRepo repository.ScanRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &model.ScanFilter{
			Profile:    model.Profile(q.Get("profile")),
			FinalState: q.Get("state"),
			LastFour:   q.Get("last4"),
			StartDate:  parseDate(q.Get("dateAfter")),
			EndDate:    parseDate(q.Get("dateBefore")),
		}
		if !filter.EndDate.IsZero() {
			filter.EndDate = filter.EndDate.Add(24*time.Hour - time.Nanosecond)
		}

		totalCount, err := scanRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting scans: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		filter.Limit = limit
		filter.Offset = (page - 1) * limit
		scans, err := scanRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying scans from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		sessions := make([]dto.SessionInfo, 0, len(scans))
		for _, s := range scans {
			sessions = append(sessions, dto.SessionInfo{ScanRecord: s})
		}

		writeJSON(w, logger, dto.SessionsData{
			Sessions:    sessions,
			FramesDir:   cfg.FrameDirectory,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// GetSessionFramesHandler returns an archived scan with its retained frames.
func GetSessionFramesHandler(logger *logger.Logger, scanRepo repository.ScanRepository, frameRepo repository.FrameRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Session id required", http.StatusBadRequest)
			return
		}

		scan, err := scanRepo.GetByID(id)
		if err != nil {
			logger.Error("Error getting scan %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if scan == nil {
			http.NotFound(w, r)
			return
		}

		frames, err := frameRepo.GetByScanID(id)
		if err != nil {
			logger.Error("Error getting frames for scan %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if frames == nil {
			frames = []model.FrameRecord{}
		}

		writeJSON(w, logger, dto.FramesData{Session: dto.SessionInfo{ScanRecord: *scan}, Frames: frames})
	}
}

// DeleteSessionHandler removes an archived scan, its frames and its images.
func DeleteSessionHandler(cfg *config.Config, logger *logger.Logger, scanRepo repository.ScanRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := r.URL.Query().Get("id")
		dir, ok := framePath(cfg.FrameDirectory, id)
		if id == "" || !ok {
			http.Error(w, "Session id required", http.StatusBadRequest)
			return
		}

		if err := scanRepo.Delete(id); err != nil {
			logger.Error("Failed to delete scan %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Error("Failed to delete frames of scan %s: %v", id, err)
		}

		logger.Info("Deleted scan: %s", id)
		writeJSON(w, logger, map[string]string{"status": "deleted", "id": id})
	}
}

// ViewFrameHandler serves an archived frame image named by the "file" query
// parameter, relative to the frame directory.
func ViewFrameHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file := r.URL.Query().Get("file")
		if file == "" {
			http.Error(w, "File parameter is required", http.StatusBadRequest)
			return
		}
		path, ok := framePath(cfg.FrameDirectory, file)
		if !ok {
			http.Error(w, "Invalid file", http.StatusBadRequest)
			return
		}
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, path)
	}
}

// framePath resolves name inside root and rejects anything that escapes it.
func framePath(root, name string) (string, bool) {
	path := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
