package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/models"
)

// retryHintMS tells the browser/client how long to wait before
// auto-reconnecting a dropped stream.
const retryHintMS = 3000

// handleListen opens the long-lived push stream. One event:/data: frame is
// written per pushed event, with periodic comment frames as keep-alives. The
// stream ends when the client disconnects, the session is evicted, or the
// hub drains during shutdown.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: %d\n\n", retryHintMS)
	flusher.Flush()

	ch, unsubscribe := s.hub.Subscribe(claims.AccountID, claims.SessionID)
	defer unsubscribe()

	if err := s.devices.Touch(r.Context(), claims.DeviceID); err != nil {
		s.logger.Warn("failed to touch device", zap.Error(err))
	}
	s.markOnline(r.Context(), claims.DeviceID, claims.AccountID)
	defer func() {
		// The request context is gone once the client disconnects.
		_ = s.presence.DeletePresence(context.Background(), claims.DeviceID)
	}()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	s.logger.Info("push stream opened",
		zap.String("accountID", claims.AccountID.String()),
		zap.String("sessionID", claims.SessionID),
	)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// Keep-alive comment prevents idle-timeout disconnects and
			// doubles as the presence heartbeat.
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			s.markOnline(r.Context(), claims.DeviceID, claims.AccountID)
		case event, ok := <-ch:
			if !ok {
				// Session evicted or hub drained; clean disconnect.
				return
			}
			if err := writeEventFrame(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEventFrame(w http.ResponseWriter, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: sync\ndata: %s\n\n", data)
	return err
}

func (s *Server) markOnline(ctx context.Context, deviceID, accountID uuid.UUID) {
	_ = s.presence.SetPresence(ctx, &models.Presence{
		AccountID: accountID,
		DeviceID:  deviceID,
		Status:    string(models.StatusOnline),
	})
}
