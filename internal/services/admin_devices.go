package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvplabs/nvp-backend/internal/audit"
	"github.com/nvplabs/nvp-backend/internal/models"
	"github.com/nvplabs/nvp-backend/internal/repository"
	"github.com/nvplabs/nvp-backend/pkg/utils"
)

// ErrInvalidAction is returned for an unknown admin action name.
var ErrInvalidAction = errors.New("invalid admin action")

// AdminActionInput describes one admin operation on a device.
type AdminActionInput struct {
	DeviceID string
	Action   string
	Days     int    // extend_trial, reset_trial
	Expiry   string // set_expiry, YYYY-MM-DD
	Override bool   // set_override
	Note     string // add_note
	AdminID  string
	IP       string
}

// AdminDeviceService backs the dashboard: listing, stats and the manual
// device operations the engines deliberately never perform on their own.
type AdminDeviceService struct {
	store     repository.AdminStore
	sink      audit.Sink
	trialDays int
	now       func() time.Time
}

func NewAdminDeviceService(store repository.AdminStore, sink audit.Sink, trialDays int) *AdminDeviceService {
	if trialDays <= 0 {
		trialDays = 7
	}
	return &AdminDeviceService{store: store, sink: sink, trialDays: trialDays, now: time.Now}
}

func (s *AdminDeviceService) ListDevices(ctx context.Context, f repository.ListFilter) ([]models.Device, int, error) {
	return s.store.List(ctx, f)
}

func (s *AdminDeviceService) GetDevice(ctx context.Context, fingerprint string) (*models.Device, error) {
	return s.store.FindByFingerprint(ctx, fingerprint)
}

func (s *AdminDeviceService) Stats(ctx context.Context) (*models.DeviceStats, error) {
	return s.store.Stats(ctx)
}

// ApplyAction performs one manual operation and returns the updated record.
// These are the only paths that set active or banned, and the only ones
// allowed to move status backwards.
func (s *AdminDeviceService) ApplyAction(ctx context.Context, in AdminActionInput) (*models.Device, error) {
	d, err := s.store.FindByFingerprint(ctx, in.DeviceID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var u repository.AdminUpdate

	switch in.Action {
	case audit.ActionActivate:
		u.Status = strPtr(models.StatusActive)
		u.ManualOverride = boolPtr(true)

	case audit.ActionBan:
		u.Status = strPtr(models.StatusBanned)
		u.ManualOverride = boolPtr(true)

	case audit.ActionUnban:
		// Hand the device back to the clock: trial while time remains,
		// expired otherwise.
		u.ManualOverride = boolPtr(false)
		left := 0
		if d.TrialEnd != nil {
			left = DaysLeft(*d.TrialEnd, now)
		}
		u.DaysLeft = &left
		if left > 0 {
			u.Status = strPtr(models.StatusTrial)
		} else {
			u.Status = strPtr(models.StatusExpired)
		}

	case audit.ActionExtendTrial:
		if in.Days <= 0 {
			return nil, fmt.Errorf("%w: extend_trial requires days > 0", ErrInvalidAction)
		}
		base := now
		if d.TrialEnd != nil && d.TrialEnd.After(now) {
			base = *d.TrialEnd
		}
		newEnd := base.AddDate(0, 0, in.Days)
		left := DaysLeft(newEnd, now)
		u.TrialEnd = &newEnd
		u.DaysLeft = &left
		u.BumpExtended = true
		if d.Status == models.StatusExpired {
			u.Status = strPtr(models.StatusTrial)
		}

	case audit.ActionResetTrial:
		days := in.Days
		if days <= 0 {
			days = s.trialDays
		}
		newEnd := now.AddDate(0, 0, days)
		u.TrialEnd = &newEnd
		u.DaysLeft = &days
		u.Status = strPtr(models.StatusTrial)
		u.ManualOverride = boolPtr(false)

	case audit.ActionSetExpiry:
		newEnd, err := time.Parse("2006-01-02", in.Expiry)
		if err != nil {
			return nil, fmt.Errorf("%w: set_expiry requires expiry as YYYY-MM-DD", ErrInvalidAction)
		}
		left := DaysLeft(newEnd, now)
		u.TrialEnd = &newEnd
		u.DaysLeft = &left
		if d.Status == models.StatusTrial && left == 0 {
			u.Status = strPtr(models.StatusExpired)
		}
		if d.Status == models.StatusExpired && left > 0 {
			u.Status = strPtr(models.StatusTrial)
		}

	case audit.ActionSetOverride:
		u.ManualOverride = boolPtr(in.Override)

	case audit.ActionAddNote:
		u.Notes = &in.Note

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, in.Action)
	}

	if err := s.store.ApplyAdminUpdate(ctx, in.DeviceID, u); err != nil {
		return nil, err
	}

	updated, err := s.store.FindByFingerprint(ctx, in.DeviceID)
	if err != nil {
		return nil, err
	}

	s.sink.Emit(audit.Event{
		DeviceID:       in.DeviceID,
		UID:            updated.UID,
		Action:         in.Action,
		PreviousStatus: d.Status,
		NewStatus:      updated.Status,
		ActorType:      "admin",
		ActorID:        in.AdminID,
		IPAddress:      in.IP,
	})

	return updated, nil
}

// RegeneratePIN mints a fresh PIN for a device and stores only its hash.
// The plaintext is returned once to the calling admin, mirroring the
// one-time disclosure at registration. This is the sole post-creation
// writer of pin_hash.
func (s *AdminDeviceService) RegeneratePIN(ctx context.Context, deviceID, adminID, ip string) (string, error) {
	d, err := s.store.FindByFingerprint(ctx, deviceID)
	if err != nil {
		return "", err
	}

	pin, err := NewPIN()
	if err != nil {
		return "", err
	}
	pinHash, err := utils.HashPIN(pin)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}

	if err := s.store.SetPinHash(ctx, deviceID, pinHash, s.now().UTC()); err != nil {
		return "", err
	}

	s.sink.Emit(audit.Event{
		DeviceID:  deviceID,
		UID:       d.UID,
		Action:    audit.ActionRegeneratePin,
		ActorType: "admin",
		ActorID:   adminID,
		IPAddress: ip,
	})

	return pin, nil
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
