package models

import (
	"time"

	"github.com/google/uuid"
)

// Session identifies one logged-in device connection. The session ID doubles
// as the push-hub subscriber key so a device never receives an echo of its
// own submissions.
type Session struct {
	ID        string    `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	DeviceID  uuid.UUID `json:"device_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
