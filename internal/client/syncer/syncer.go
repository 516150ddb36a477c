// Package syncer drives the device's exchange with the server: flushing the
// pending-event queue, pulling missed changes by watermark, and following
// the real-time push stream. Push is a latency optimization only; the pull
// path is the correctness backstop.
package syncer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/client/reconcile"
	"github.com/prudhvinik1/whatsnote/internal/client/store"
	"github.com/prudhvinik1/whatsnote/internal/models"
)

const sessionCookieName = "whatsnote_session"

type Syncer struct {
	baseURL    string
	token      string
	httpClient *http.Client
	store      *store.Store
	reconciler *reconcile.Reconciler
	logger     *zap.Logger

	// Coalesces concurrent sync attempts instead of running them in parallel.
	mu sync.Mutex
}

func New(baseURL, token string, s *store.Store, r *reconcile.Reconciler, logger *zap.Logger) *Syncer {
	return &Syncer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      s,
		reconciler: r,
		logger:     logger,
	}
}

// Submit durably queues a locally-generated event and applies it to the
// local views immediately, so the device reads its own writes before the
// server has acknowledged anything.
func (s *Syncer) Submit(event models.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if err := s.store.InsertPending(&event); err != nil {
		return err
	}
	_, err := s.reconciler.ApplyEvents([]models.Event{event})
	return err
}

// Sync flushes the pending queue and then pulls missed changes. A Sync that
// finds another one already in flight returns immediately; the in-flight run
// covers it.
func (s *Syncer) Sync(ctx context.Context) error {
	if !s.mu.TryLock() {
		return nil
	}
	defer s.mu.Unlock()

	if err := s.flush(ctx); err != nil {
		return err
	}
	return s.pull(ctx)
}

// Flush transmits all queued events; each acknowledged event is removed from
// the queue. Events stay queued across restarts until acknowledged.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(ctx)
}

// Pull fetches and replays everything past the local watermark, advancing
// the watermark only after the whole batch applied cleanly.
func (s *Syncer) Pull(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pull(ctx)
}

type submitFailure struct {
	Index     int    `json:"index"`
	EventID   string `json:"eventId"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (s *Syncer) flush(ctx context.Context) error {
	pending, err := s.store.ListPending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	body, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending events: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPost, "/api/events", bytes.NewReader(body))
	if err != nil {
		// Network failure: everything stays queued for a later retry.
		return fmt.Errorf("failed to flush events: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		for _, event := range pending {
			if err := s.store.DeletePending(event.ID); err != nil {
				return err
			}
		}
		return nil
	case http.StatusBadRequest, http.StatusInternalServerError:
		// Per-item isolation: drop acknowledged and permanently-invalid
		// events, keep retryable ones queued.
		var result struct {
			Errors []submitFailure `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode flush response: %w", err)
		}

		keep := make(map[int]bool)
		for _, failure := range result.Errors {
			if failure.Retryable {
				keep[failure.Index] = true
			} else {
				s.logger.Warn("server rejected event permanently",
					zap.String("eventID", failure.EventID),
					zap.String("reason", failure.Error),
				)
			}
		}

		for i, event := range pending {
			if keep[i] {
				continue
			}
			if err := s.store.DeletePending(event.ID); err != nil {
				return err
			}
		}
		if len(keep) > 0 {
			return fmt.Errorf("flush left %d events queued for retry", len(keep))
		}
		return nil
	default:
		return fmt.Errorf("flush failed with status %d", resp.StatusCode)
	}
}

func (s *Syncer) pull(ctx context.Context) error {
	watermark, err := s.store.Watermark()
	if err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodGet, "/api/sync?watermark="+strconv.FormatInt(watermark, 10), nil)
	if err != nil {
		return fmt.Errorf("failed to pull changes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync failed with status %d", resp.StatusCode)
	}

	var events []models.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return fmt.Errorf("failed to decode sync response: %w", err)
	}

	maxReceived, err := s.reconciler.ApplyEvents(events)
	if err != nil {
		// Watermark stays put so the same change set is re-fetched.
		return fmt.Errorf("failed to apply pulled events: %w", err)
	}

	if maxReceived > watermark {
		if err := s.store.SetWatermark(maxReceived); err != nil {
			return err
		}
	}
	return nil
}

// Listen follows the push stream, applying each delivered event. It returns
// when the stream ends (server shutdown, session eviction) or the context is
// canceled; the caller decides whether to reconnect. Pushed events never
// advance the watermark; only a full pull does.
func (s *Syncer) Listen(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/listen", nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: s.token})

	// No timeout: the stream is long-lived and canceled via ctx.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open push stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listen failed with status %d", resp.StatusCode)
	}

	s.logger.Info("push stream connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			// Frame boundary: apply the accumulated event, if any.
			if data.Len() > 0 {
				s.applyPushed(data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// Comments (keep-alives), event names and retry hints.
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("push stream error: %w", err)
	}
	return nil
}

func (s *Syncer) applyPushed(payload string) {
	var event models.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("dropping malformed pushed event", zap.Error(err))
		return
	}
	if _, err := s.reconciler.ApplyEvents([]models.Event{event}); err != nil {
		s.logger.Warn("failed to apply pushed event",
			zap.String("eventID", event.ID),
			zap.Error(err),
		)
	}
}

func (s *Syncer) do(ctx context.Context, method, path string, body *bytes.Reader) (*http.Response, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: s.token})
	return s.httpClient.Do(req)
}
