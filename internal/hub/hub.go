// Package hub implements the in-process push fan-out for connected devices.
//
// Delivery is fire-and-forget: a session whose buffer is full, or that is not
// connected, simply misses the push and catches up through the sync endpoint.
package hub

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/models"
)

// sessionBuffer bounds how many undelivered events a slow stream may hold
// before further pushes to it are dropped.
const sessionBuffer = 16

type Hub struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]map[string]chan models.Event
	draining bool
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	return &Hub{
		accounts: make(map[uuid.UUID]map[string]chan models.Event),
		logger:   logger,
	}
}

// Subscribe registers a session's push channel and returns it together with
// an unsubscribe function. The returned channel is closed on unsubscribe or
// when the hub drains, so stream handlers observe a clean shutdown.
func (h *Hub) Subscribe(accountID uuid.UUID, sessionID string) (<-chan models.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.Event, sessionBuffer)
	if h.draining {
		close(ch)
		return ch, func() {}
	}

	sessions, ok := h.accounts[accountID]
	if !ok {
		sessions = make(map[string]chan models.Event)
		h.accounts[accountID] = sessions
	}

	if old, ok := sessions[sessionID]; ok {
		// A reconnect with the same session replaces the stale channel.
		close(old)
	}
	sessions[sessionID] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if cur, ok := h.accounts[accountID][sessionID]; ok && cur == ch {
			delete(h.accounts[accountID], sessionID)
			if len(h.accounts[accountID]) == 0 {
				delete(h.accounts, accountID)
			}
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers the event to every connected session of the account except
// the originating one, which already applied it optimistically.
func (h *Hub) Publish(accountID uuid.UUID, originSessionID string, event models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sessionID, ch := range h.accounts[accountID] {
		if sessionID == originSessionID {
			continue
		}
		select {
		case ch <- event:
		default:
			h.logger.Debug("push dropped: session buffer full",
				zap.String("sessionID", sessionID),
				zap.String("eventID", event.ID),
			)
		}
	}
}

// DisconnectAccount closes every stream of one account, used when the
// account is deleted.
func (h *Hub) DisconnectAccount(accountID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.accounts[accountID] {
		close(ch)
	}
	delete(h.accounts, accountID)
}

// Drain closes every registered stream and refuses new subscriptions.
// Invoked once during orderly shutdown, before the HTTP server stops.
func (h *Hub) Drain() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.draining {
		return
	}
	h.draining = true

	n := 0
	for accountID, sessions := range h.accounts {
		for _, ch := range sessions {
			close(ch)
			n++
		}
		delete(h.accounts, accountID)
	}
	h.logger.Info("hub drained", zap.Int("streams", n))
}
