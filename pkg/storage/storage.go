// Package storage persists enrolled identities and attendance records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/recognition"
)

// StatusPresent is the only attendance status the system records.
const StatusPresent = "Present"

// dayLayout keys attendance records by calendar day.
const dayLayout = "2006-01-02"

// Identity is an enrolled person. Re-enrollment creates a new Identity.
type Identity struct {
	ID        string
	Name      string
	Encoding  recognition.Encoding
	CreatedAt time.Time
}

// AttendanceRecord is one "present" event. At most one exists per identity
// and calendar day.
type AttendanceRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	IdentityID string    `gorm:"size:36;not null;uniqueIndex:idx_attendance_identity_day"`
	Day        string    `gorm:"size:10;not null;uniqueIndex:idx_attendance_identity_day;index"`
	Timestamp  time.Time `gorm:"not null"`
	Status     string    `gorm:"size:16;not null"`
}

// ErrStoreUnavailable wraps every failure of the underlying store.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrIdentityNotFound is returned when an identity id is unknown.
var ErrIdentityNotFound = errors.New("identity not found")

// ErrDuplicateAttendance is returned when a record already exists for the
// identity and day.
var ErrDuplicateAttendance = errors.New("attendance already recorded for day")

// ErrInvalidIdentity is returned for an empty name or encoding, or an
// encoding whose length differs from the enrolled ones.
var ErrInvalidIdentity = errors.New("identity requires a name and an encoding")

// AttendanceTx is the view of the store inside one transaction.
type AttendanceTx interface {
	HasAttendance(identityID, day string) (bool, error)
	InsertAttendance(identityID string, at time.Time) (AttendanceRecord, error)
}

// Store is the persistence contract used by enrollment, matching and the
// attendance committer.
type Store interface {
	// LookupIdentities returns all identities ordered by enrollment time, then id.
	LookupIdentities(ctx context.Context) ([]Identity, error)
	InsertIdentity(ctx context.Context, name string, encoding recognition.Encoding) (Identity, error)
	GetIdentity(ctx context.Context, id string) (Identity, error)

	// Transact runs fn atomically. An error from fn rolls the transaction back
	// and is returned unchanged.
	Transact(ctx context.Context, fn func(tx AttendanceTx) error) error

	HasAttendance(ctx context.Context, identityID string, at time.Time) (bool, error)
	InsertAttendance(ctx context.Context, identityID string, at time.Time) (AttendanceRecord, error)

	// ListAttendance returns records whose day lies in [from, to], ordered by
	// timestamp. A zero bound is open.
	ListAttendance(ctx context.Context, from, to time.Time) ([]AttendanceRecord, error)

	Close() error
}

// DayKey returns the calendar day of t in its own location.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

func validIdentity(name string, encoding recognition.Encoding) bool {
	return name != "" && len(encoding) > 0
}

// checkDim rejects an encoding that cannot be compared with enrolled, the
// encoding of any existing identity. A nil enrolled accepts every length.
func checkDim(enrolled, encoding recognition.Encoding) error {
	if enrolled != nil && len(enrolled) != len(encoding) {
		return fmt.Errorf("%w: encoding has %d values, enrolled identities have %d", ErrInvalidIdentity, len(encoding), len(enrolled))
	}
	return nil
}

func inRange(day string, from, to time.Time) bool {
	if !from.IsZero() && day < DayKey(from) {
		return false
	}
	if !to.IsZero() && day > DayKey(to) {
		return false
	}
	return true
}
