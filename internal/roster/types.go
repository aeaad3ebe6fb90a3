package roster

import (
	"time"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// dateLayout is the storage form of birth dates.
const dateLayout = "2006-01-02"

// User is a person who can wear a sensor.
type User struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Gender    telemetry.Gender `json:"gender"`
	BirthDate time.Time        `json:"birth_date"`
	Weight    float64          `json:"weight"` // kg
	Height    float64          `json:"height"` // cm
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Identity returns the snapshot used by scoring and the live cache.
func (u *User) Identity() *telemetry.Identity {
	return &telemetry.Identity{
		UserID:    u.ID,
		Name:      u.Name,
		Gender:    u.Gender,
		BirthDate: u.BirthDate,
		Weight:    u.Weight,
		Height:    u.Height,
	}
}

// DeviceLink binds one device id to one user. A device has at most one link.
type DeviceLink struct {
	DeviceID  uint32    `json:"device_id"`
	UserID    string    `json:"user_id"`
	LinkedAt  time.Time `json:"linked_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkedUser is a link joined with its user.
type LinkedUser struct {
	Link DeviceLink `json:"link"`
	User User       `json:"user"`
}
