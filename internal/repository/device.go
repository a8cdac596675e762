package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nvplabs/nvp-backend/internal/models"
)

// ErrDeviceNotFound is returned by point reads when no record exists for
// the given fingerprint or UID.
var ErrDeviceNotFound = errors.New("device not found")

// ErrUIDConflict is returned by InsertIfAbsent when the insert was rejected
// because another device already owns the generated UID. The caller is
// expected to generate a new UID and retry.
var ErrUIDConflict = errors.New("uid already in use")

// ContactUpdate carries the mutable metadata refreshed on every contact
// from a device. Last-writer-wins; concurrent updates converge.
type ContactUpdate struct {
	PlayerVersion string
	AppBuild      int
	IPAddress     string
	LastSeen      time.Time
}

// DerivedUpdate persists the values a status check recomputes.
type DerivedUpdate struct {
	Status    string
	DaysLeft  int
	IPAddress string
	LastSeen  time.Time
}

// AdminUpdate carries the fields an admin action may change. Nil pointers
// leave the stored value untouched.
type AdminUpdate struct {
	Status         *string
	TrialEnd       *time.Time
	DaysLeft       *int
	ManualOverride *bool
	Notes          *string
	BumpExtended   bool
}

// ListFilter narrows admin device listings.
type ListFilter struct {
	Status         string
	Platform       string
	ManualOverride *bool
	Search         string // matches fingerprint, uid or device model
	Limit          int
	Offset         int
}

// DeviceStore is the storage contract the engines depend on. The store must
// provide atomic insert-if-absent on the fingerprint key; everything else is
// plain point reads and idempotent updates.
type DeviceStore interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.Device, error)
	FindByUID(ctx context.Context, uid string) (*models.Device, error)

	// InsertIfAbsent atomically creates the record unless one already exists
	// for the same fingerprint, in which case it does nothing and returns
	// no error. Callers must re-read and compare UIDs to learn whether their
	// write won. A UID collision with a different device returns ErrUIDConflict.
	InsertIfAbsent(ctx context.Context, d *models.Device) error

	UpdateContact(ctx context.Context, fingerprint string, u ContactUpdate) error
	UpdateDerived(ctx context.Context, fingerprint string, u DerivedUpdate) error
}

// AdminStore extends DeviceStore with the operations the admin dashboard
// needs. The Postgres and in-memory stores implement both.
type AdminStore interface {
	DeviceStore

	List(ctx context.Context, f ListFilter) ([]models.Device, int, error)
	Stats(ctx context.Context) (*models.DeviceStats, error)
	ApplyAdminUpdate(ctx context.Context, fingerprint string, u AdminUpdate) error
	SetPinHash(ctx context.Context, fingerprint, pinHash string, at time.Time) error
}
