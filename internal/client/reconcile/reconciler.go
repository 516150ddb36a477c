// Package reconcile replays events into the device's materialized views.
// Push and pull deliveries converge on the same ApplyEvents routine, so
// there is exactly one replay code path regardless of delivery mechanism.
package reconcile

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/client/store"
	"github.com/prudhvinik1/whatsnote/internal/models"
)

type Reconciler struct {
	store  *store.Store
	logger *zap.Logger

	// One reconciliation in flight at a time preserves replay order.
	mu sync.Mutex
}

func New(s *store.Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: s, logger: logger}
}

// ApplyEvents replays the batch into the local views in emittedAt order and
// returns the maximum receivedAt observed. Application is idempotent per
// event. On any hard failure the error is returned and the caller must not
// advance its watermark, so the same change set is re-fetched and retried.
func (r *Reconciler) ApplyEvents(events []models.Event) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := make([]models.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EmittedAt < ordered[j].EmittedAt
	})

	var maxReceived int64
	for _, event := range ordered {
		if err := r.apply(event); err != nil {
			return 0, err
		}
		if event.ReceivedAt > maxReceived {
			maxReceived = event.ReceivedAt
		}
	}
	return maxReceived, nil
}

func (r *Reconciler) apply(event models.Event) error {
	switch event.Type {
	case models.EventEditNote:
		return r.applyEditNote(event)
	case models.EventPostMsg:
		return r.applyPostMsg(event)
	case models.EventEditMsg:
		return r.applyEditMsg(event)
	case models.EventCheckMsg:
		return r.applyChecked(event, true)
	case models.EventUncheckMsg:
		return r.applyChecked(event, false)
	case models.EventDeleteMsg:
		return r.store.DeleteMessage(event.ItemID)
	default:
		r.logger.Warn("skipping event of unknown type", zap.String("type", string(event.Type)))
		return nil
	}
}

// applyEditNote overwrites the local note unless it already holds a later
// edit (last-write-wins by emittedAt, no merge).
func (r *Reconciler) applyEditNote(event models.Event) error {
	payload, err := event.NotePayload()
	if err != nil {
		return err
	}

	existing, err := r.store.GetNote(event.ItemID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if existing != nil && existing.LastEdit > event.EmittedAt {
		return nil
	}

	return r.store.PutNote(&models.Note{
		ID:       event.ItemID,
		LastEdit: event.EmittedAt,
		Text:     payload.Text,
	})
}

func (r *Reconciler) applyPostMsg(event models.Event) error {
	payload, err := event.MessagePayload()
	if err != nil {
		return err
	}

	return r.store.PutMessage(&models.Message{
		ID:      event.ItemID,
		SentAt:  event.EmittedAt,
		Text:    payload.Text,
		Tag:     payload.Tag,
		Checked: payload.Checked,
	})
}

func (r *Reconciler) applyEditMsg(event models.Event) error {
	edit, err := event.MessageEdit()
	if err != nil {
		return err
	}

	msg, err := r.store.GetMessage(event.ItemID)
	if errors.Is(err, store.ErrNotFound) {
		// The postMsg for this id may not have synced yet.
		r.logger.Warn("editMsg for unknown message", zap.String("itemID", event.ItemID))
		return nil
	}
	if err != nil {
		return err
	}

	if edit.Text != nil {
		msg.Text = *edit.Text
	}
	if edit.Tag != nil {
		msg.Tag = edit.Tag
	}
	return r.store.PutMessage(msg)
}

func (r *Reconciler) applyChecked(event models.Event, checked bool) error {
	msg, err := r.store.GetMessage(event.ItemID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("check toggle for unknown message",
			zap.String("itemID", event.ItemID),
			zap.String("type", string(event.Type)),
		)
		return nil
	}
	if err != nil {
		return err
	}

	msg.Checked = checked
	return r.store.PutMessage(msg)
}
