package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/prudhvinik1/whatsnote/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDevicesByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Device, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

type EventRepository interface {
	// Append persists one event, assigning its ReceivedAt. For editNote it
	// compacts older edits of the same item in the same transaction.
	Append(ctx context.Context, event *models.Event) error
	// QueryChangesSince returns all events with received_at >= watermark for
	// the account, ordered by emitted_at ascending.
	QueryChangesSince(ctx context.Context, accountID uuid.UUID, watermark int64) ([]models.Event, error)
	DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	GetPresence(ctx context.Context, deviceID uuid.UUID) (*models.Presence, error)
	DeletePresence(ctx context.Context, deviceID uuid.UUID) error
}
