package hub

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/models"
)

func recvEvent(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func TestHub_NoSelfEcho(t *testing.T) {
	h := New(zap.NewNop())
	accountID := uuid.New()

	origin, cancelOrigin := h.Subscribe(accountID, "session-origin")
	defer cancelOrigin()
	other, cancelOther := h.Subscribe(accountID, "session-other")
	defer cancelOther()

	h.Publish(accountID, "session-origin", models.Event{ID: "e1"})

	assert.Equal(t, "e1", recvEvent(t, other).ID)
	select {
	case event := <-origin:
		t.Fatalf("originating session received its own event %q", event.ID)
	default:
	}
}

func TestHub_AccountIsolation(t *testing.T) {
	h := New(zap.NewNop())

	chA, cancelA := h.Subscribe(uuid.New(), "session-a")
	defer cancelA()
	accountB := uuid.New()
	chB, cancelB := h.Subscribe(accountB, "session-b")
	defer cancelB()

	h.Publish(accountB, "", models.Event{ID: "e1"})

	assert.Equal(t, "e1", recvEvent(t, chB).ID)
	select {
	case <-chA:
		t.Fatal("event leaked across accounts")
	default:
	}
}

// Delivery is fire-and-forget: a session with a full buffer misses the push
// and must catch up through the sync endpoint.
func TestHub_FullBufferDropsSilently(t *testing.T) {
	h := New(zap.NewNop())
	accountID := uuid.New()

	_, cancel := h.Subscribe(accountID, "slow-session")
	defer cancel()

	for i := 0; i < sessionBuffer+10; i++ {
		h.Publish(accountID, "", models.Event{ID: "e"})
	}
	// No deadlock and no panic is the assertion here.
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := New(zap.NewNop())
	accountID := uuid.New()

	ch, cancel := h.Subscribe(accountID, "session-1")
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// Publishing after unsubscribe must not panic
	h.Publish(accountID, "", models.Event{ID: "e1"})
}

func TestHub_DrainClosesAllStreams(t *testing.T) {
	h := New(zap.NewNop())

	ch1, _ := h.Subscribe(uuid.New(), "session-1")
	ch2, _ := h.Subscribe(uuid.New(), "session-2")

	h.Drain()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	// New subscriptions after drain get an already-closed channel
	ch3, cancel := h.Subscribe(uuid.New(), "session-3")
	defer cancel()
	_, ok = <-ch3
	assert.False(t, ok)
}

func TestHub_DisconnectAccount(t *testing.T) {
	h := New(zap.NewNop())
	accountID := uuid.New()

	ch, _ := h.Subscribe(accountID, "session-1")
	other, cancelOther := h.Subscribe(uuid.New(), "session-2")
	defer cancelOther()

	h.DisconnectAccount(accountID)

	_, ok := <-ch
	assert.False(t, ok, "deleted account's stream should close")

	select {
	case _, ok := <-other:
		assert.True(t, ok)
		t.Fatal("unrelated account's stream should stay open")
	default:
	}
}
