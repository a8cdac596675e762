package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nvplabs/nvp-backend/internal/audit"
	"github.com/nvplabs/nvp-backend/internal/models"
	"github.com/nvplabs/nvp-backend/internal/repository"
	"github.com/nvplabs/nvp-backend/pkg/utils"
)

// ErrUIDExhausted means the generator could not find a free UID within the
// attempt budget. Operator-visible; devices see a transient server failure.
var ErrUIDExhausted = errors.New("failed to generate unique uid after maximum attempts")

const maxUIDAttempts = 10

// RegisterInput is an already-validated registration request. The HTTP
// boundary enforces field constraints before the engine runs.
type RegisterInput struct {
	DeviceID      string
	Platform      string
	OSVersion     string
	DeviceModel   string
	Architecture  string
	PlayerVersion string
	AppBuild      int
	IPAddress     string
}

// DeviceStatusResponse is the device-facing response shape for both
// register and status calls. Pin is set on exactly one response ever:
// the registration that created the record.
type DeviceStatusResponse struct {
	Status         string `json:"status"`
	UID            string `json:"uid,omitempty"`
	Pin            string `json:"pin,omitempty"`
	DaysLeft       int    `json:"days_left"`
	TrialEnd       string `json:"trial_end"`
	ManualOverride bool   `json:"manual_override"`
}

// RegistrationEngine handles first-contact and repeat-contact registration.
type RegistrationEngine struct {
	store     repository.DeviceStore
	sink      audit.Sink
	trialDays int
	now       func() time.Time
}

func NewRegistrationEngine(store repository.DeviceStore, sink audit.Sink, trialDays int) *RegistrationEngine {
	if trialDays <= 0 {
		trialDays = 7
	}
	return &RegistrationEngine{
		store:     store,
		sink:      sink,
		trialDays: trialDays,
		now:       time.Now,
	}
}

// Register creates the device on first contact or refreshes it on repeat
// contact. Returns the response and whether this call created the record.
//
// Concurrency is handled entirely by the store: the insert is conditional
// on the fingerprint being absent, and the mandatory read-back afterwards
// decides which concurrent caller actually won. Only the winner's response
// carries the plaintext PIN.
func (e *RegistrationEngine) Register(ctx context.Context, in RegisterInput) (*DeviceStatusResponse, bool, error) {
	existing, err := e.store.FindByFingerprint(ctx, in.DeviceID)
	if err == nil {
		// SECURITY: device already registered - return existing UID without PIN
		return e.repeatContact(ctx, existing, in)
	}
	if !errors.Is(err, repository.ErrDeviceNotFound) {
		return nil, false, err
	}

	pin, err := NewPIN()
	if err != nil {
		return nil, false, err
	}
	pinHash, err := utils.HashPIN(pin)
	if err != nil {
		return nil, false, fmt.Errorf("hash pin: %w", err)
	}

	now := e.now().UTC()
	trialEnd := now.AddDate(0, 0, e.trialDays)

	device := &models.Device{
		DeviceFingerprint: in.DeviceID,
		PinHash:           pinHash,
		PinCreatedAt:      &now,
		Platform:          in.Platform,
		OSVersion:         in.OSVersion,
		DeviceModel:       in.DeviceModel,
		Architecture:      in.Architecture,
		PlayerVersion:     in.PlayerVersion,
		AppBuild:          in.AppBuild,
		IPAddress:         in.IPAddress,
		Status:            models.StatusTrial,
		TrialStart:        &now,
		TrialEnd:          &trialEnd,
		DaysLeft:          e.trialDays,
		ManualOverride:    false,
		FirstSeen:         now,
		LastSeen:          now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	uid, err := e.insertWithFreshUID(ctx, device)
	if err != nil {
		return nil, false, err
	}

	// Read back the stored record. Mandatory even when the insert reported
	// success: insert-if-absent silently keeps the existing row, so only a
	// UID comparison tells us whether this call won the race.
	stored, err := e.store.FindByFingerprint(ctx, in.DeviceID)
	if err != nil {
		return nil, false, err
	}
	if stored.UID != uid {
		log.Printf("[device-register] race detected for %s, returning existing device", in.DeviceID)
		return e.repeatContact(ctx, stored, in)
	}

	log.Printf("[device-register] device registered: %s, UID: %s", in.DeviceID, uid)

	e.sink.Emit(audit.Event{
		DeviceID:  in.DeviceID,
		Action:    audit.ActionRegister,
		IPAddress: in.IPAddress,
		Details:   map[string]interface{}{"platform": in.Platform, "uid": uid},
	})
	e.sink.Emit(audit.Event{
		DeviceID:  in.DeviceID,
		UID:       uid,
		Action:    audit.ActionRegistered,
		NewStatus: models.StatusTrial,
		IPAddress: in.IPAddress,
	})

	// The PIN is returned here and never again.
	return &DeviceStatusResponse{
		Status:         models.StatusTrial,
		UID:            uid,
		Pin:            pin,
		DaysLeft:       e.trialDays,
		TrialEnd:       formatDate(device.TrialEnd),
		ManualOverride: false,
	}, true, nil
}

// insertWithFreshUID generates a UID, verifies it is free and inserts the
// record, retrying on collision up to the attempt budget. The unique index
// on uid backstops the check-then-insert window: a concurrent taker makes
// the insert fail with ErrUIDConflict and we just try the next candidate.
func (e *RegistrationEngine) insertWithFreshUID(ctx context.Context, device *models.Device) (string, error) {
	for attempt := 0; attempt < maxUIDAttempts; attempt++ {
		uid, err := NewUID()
		if err != nil {
			return "", err
		}

		_, err = e.store.FindByUID(ctx, uid)
		if err == nil {
			continue // taken
		}
		if !errors.Is(err, repository.ErrDeviceNotFound) {
			return "", err
		}

		device.UID = uid
		err = e.store.InsertIfAbsent(ctx, device)
		if errors.Is(err, repository.ErrUIDConflict) {
			continue
		}
		if err != nil {
			return "", err
		}
		return uid, nil
	}
	return "", ErrUIDExhausted
}

func (e *RegistrationEngine) repeatContact(ctx context.Context, d *models.Device, in RegisterInput) (*DeviceStatusResponse, bool, error) {
	err := e.store.UpdateContact(ctx, d.DeviceFingerprint, repository.ContactUpdate{
		PlayerVersion: in.PlayerVersion,
		AppBuild:      in.AppBuild,
		IPAddress:     in.IPAddress,
		LastSeen:      e.now().UTC(),
	})
	if err != nil {
		return nil, false, err
	}

	e.sink.Emit(audit.Event{
		DeviceID:  d.DeviceFingerprint,
		UID:       d.UID,
		Action:    audit.ActionStatusCheck,
		NewStatus: d.Status,
		IPAddress: in.IPAddress,
	})

	return &DeviceStatusResponse{
		Status:         d.Status,
		UID:            d.UID,
		DaysLeft:       d.DaysLeft,
		TrialEnd:       formatDate(d.TrialEnd),
		ManualOverride: d.ManualOverride,
	}, false, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
