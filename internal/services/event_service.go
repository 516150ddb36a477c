package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/hub"
	"github.com/prudhvinik1/whatsnote/internal/models"
	"github.com/prudhvinik1/whatsnote/internal/repositories"
)

// SubmitResult reports the outcome of one event in a submitted batch.
// Failures are isolated per item; a malformed event does not abort the rest.
type SubmitResult struct {
	Index   int    `json:"index"`
	EventID string `json:"eventId"`
	Error   string `json:"error"`
	// Retryable marks storage failures the client should resubmit, as
	// opposed to invalid events that can never be accepted.
	Retryable bool `json:"retryable"`
}

type EventService struct {
	events repositories.EventRepository
	hub    *hub.Hub
	logger *zap.Logger
}

func NewEventService(events repositories.EventRepository, h *hub.Hub, logger *zap.Logger) *EventService {
	return &EventService{events: events, hub: h, logger: logger}
}

// Submit validates and appends each event independently, publishing stored
// events to the push hub for the account's other connected sessions.
// The returned slice holds one entry per failed event; an empty result means
// the whole batch was stored.
func (s *EventService) Submit(ctx context.Context, accountID uuid.UUID, originSessionID string, events []models.Event) []SubmitResult {
	var failures []SubmitResult

	for i := range events {
		event := &events[i]
		event.AccountID = accountID

		if err := event.Validate(); err != nil {
			failures = append(failures, SubmitResult{
				Index:   i,
				EventID: event.ID,
				Error:   err.Error(),
			})
			continue
		}

		if err := s.events.Append(ctx, event); err != nil {
			s.logger.Error("failed to append event",
				zap.String("eventID", event.ID),
				zap.String("accountID", accountID.String()),
				zap.Error(err),
			)
			failures = append(failures, SubmitResult{
				Index:     i,
				EventID:   event.ID,
				Error:     "storage failure",
				Retryable: true,
			})
			continue
		}

		s.hub.Publish(accountID, originSessionID, *event)
	}

	return failures
}

// ChangesSince returns the ordered change set a device has not yet observed.
func (s *EventService) ChangesSince(ctx context.Context, accountID uuid.UUID, watermark int64) ([]models.Event, error) {
	return s.events.QueryChangesSince(ctx, accountID, watermark)
}

// PurgeAccount removes every event the account owns.
func (s *EventService) PurgeAccount(ctx context.Context, accountID uuid.UUID) error {
	return s.events.DeleteAllForAccount(ctx, accountID)
}

// Invalid reports whether any failure in the result set is a validation
// failure rather than a retryable storage one.
func Invalid(failures []SubmitResult) bool {
	for _, f := range failures {
		if !f.Retryable {
			return true
		}
	}
	return false
}

// Retryable reports whether any failure in the result set is a storage one.
func Retryable(failures []SubmitResult) bool {
	for _, f := range failures {
		if f.Retryable {
			return true
		}
	}
	return false
}
