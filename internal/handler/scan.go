package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cardscan/internal/config"
	"cardscan/internal/dto"
	"cardscan/internal/ingest"
	"cardscan/internal/logger"
	"cardscan/internal/model"
	"cardscan/internal/service/scan"

	ws "github.com/gorilla/websocket"
)

// ScanWebsocketHandler runs one scan session per connection. The query string
// selects the profile and required card; each client message is a frame
// message (JSON text or CBOR binary) and is answered with a state update. The
// connection closes once the scan finishes.
func ScanWebsocketHandler(manager *scan.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := scanOptions(r, cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		session, err := manager.Start(opts)
		if err != nil {
			logger.Error("Error starting scan: %v", err)
			send(connection, logger, "", dto.StateUpdate{Type: dto.TypeState, Error: err.Error()})
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if !send(connection, logger, session.ID, dto.StateUpdate{Type: dto.TypeState, SessionID: session.ID, State: session.State().String()}) {
			endUnfinished(manager, session.ID)
			return
		}

		for {
			kind, data, err := connection.ReadMessage()
			if err != nil {
				if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					logger.Warning("Scan %s client disconnected with error: %v", session.ID, err)
				}
				endUnfinished(manager, session.ID)
				return
			}

			msg, err := decodeFrame(kind, data)
			if err != nil {
				if !send(connection, logger, session.ID, dto.StateUpdate{Type: dto.TypeState, SessionID: session.ID, Error: err.Error()}) {
					endUnfinished(manager, session.ID)
					return
				}
				continue
			}
			if msg.Type == dto.MessageEnd {
				endUnfinished(manager, session.ID)
				closeNormal(connection, logger, session.ID, "scan ended")
				return
			}

			update, err := session.HandleFrame(ctx, msg.Prediction(), msg.Capture(time.Time{}))
			out := update.DTO()
			if err != nil {
				logger.Error("Scan %s frame error: %v", session.ID, err)
				out.SessionID = session.ID
				out.Error = err.Error()
			}
			if !send(connection, logger, session.ID, out) {
				endUnfinished(manager, session.ID)
				return
			}

			if update.Finished || errors.Is(err, scan.ErrSessionFinished) {
				closeNormal(connection, logger, session.ID, "scan finished")
				return
			}
		}
	}
}

func scanOptions(r *http.Request, cfg *config.Config) (scan.Options, error) {
	q := r.URL.Query()

	opts := scan.Options{
		Profile:          model.ParseProfile(q.Get("profile"), model.ParseProfile(cfg.DefaultProfile, model.ProfileFast)),
		Requirement:      model.Requirement{Bin: q.Get("bin"), LastFour: q.Get("last4")},
		FlashFlowEnabled: cfg.FlashFlowEnabled,
	}
	if v := q.Get("flash"); v != "" {
		flash, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("invalid flash parameter")
		}
		opts.FlashFlowEnabled = flash
	}
	if !digits(opts.Requirement.Bin, 6) || !digits(opts.Requirement.LastFour, 4) {
		return opts, errors.New("bin must be 6 digits and last4 must be 4 digits")
	}
	return opts, nil
}

// digits accepts an empty string or exactly n decimal digits.
func digits(v string, n int) bool {
	if v == "" {
		return true
	}
	if len(v) != n {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func decodeFrame(kind int, data []byte) (*dto.FrameMessage, error) {
	if kind == ws.BinaryMessage {
		return ingest.DecodeCBOR(data)
	}
	return ingest.DecodeJSON(data)
}

// send writes one JSON message and logs a failed write.
func send(connection *ws.Conn, logger *logger.Logger, sessionID string, v interface{}) bool {
	if err := connection.WriteJSON(v); err != nil {
		logger.Warning("Scan %s write error: %v", sessionID, err)
		return false
	}
	return true
}

func closeNormal(connection *ws.Conn, logger *logger.Logger, sessionID, reason string) {
	msg := ws.FormatCloseMessage(ws.CloseNormalClosure, reason)
	if err := connection.WriteMessage(ws.CloseMessage, msg); err != nil {
		logger.Warning("Scan %s close error: %v", sessionID, err)
	}
}

func endUnfinished(manager *scan.Manager, id string) {
	// Finished sessions already left the manager.
	_ = manager.End(id)
}
