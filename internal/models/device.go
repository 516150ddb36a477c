package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is one client installation of an account. Every session belongs
// to a device; presence is keyed by it.
type Device struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	Name       string     `json:"name"`
	DeviceType string     `json:"device_type"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
