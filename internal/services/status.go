package services

import (
	"context"
	"time"

	"github.com/nvplabs/nvp-backend/internal/audit"
	"github.com/nvplabs/nvp-backend/internal/models"
	"github.com/nvplabs/nvp-backend/internal/repository"
)

// StatusEngine handles device status checks. A status check never creates
// a record and never returns the UID or PIN.
type StatusEngine struct {
	store repository.DeviceStore
	sink  audit.Sink
	now   func() time.Time
}

func NewStatusEngine(store repository.DeviceStore, sink audit.Sink) *StatusEngine {
	return &StatusEngine{store: store, sink: sink, now: time.Now}
}

// CheckStatus reads the device, lazily recomputes days_left and auto-expires
// a finished trial, persists the derived values, and returns the current
// view. Unknown fingerprints surface repository.ErrDeviceNotFound.
func (e *StatusEngine) CheckStatus(ctx context.Context, fingerprint, ip string) (*DeviceStatusResponse, error) {
	d, err := e.store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	daysLeft := d.DaysLeft
	status := d.Status
	transitioned := false

	// manual_override freezes administrator-set values; the clock never
	// overrides them.
	if d.TrialEnd != nil && !d.ManualOverride {
		daysLeft = DaysLeft(*d.TrialEnd, e.now())
		if daysLeft <= 0 && status == models.StatusTrial {
			status = models.StatusExpired
			transitioned = true
		}
	}

	err = e.store.UpdateDerived(ctx, fingerprint, repository.DerivedUpdate{
		Status:    status,
		DaysLeft:  daysLeft,
		IPAddress: ip,
		LastSeen:  e.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	e.sink.Emit(audit.Event{
		DeviceID:  fingerprint,
		UID:       d.UID,
		Action:    audit.ActionStatusCheck,
		NewStatus: status,
		IPAddress: ip,
		Details:   map[string]interface{}{"days_left": daysLeft},
	})
	if transitioned {
		e.sink.Emit(audit.Event{
			DeviceID:       fingerprint,
			UID:            d.UID,
			Action:         audit.ActionTrialExpired,
			PreviousStatus: models.StatusTrial,
			NewStatus:      models.StatusExpired,
			IPAddress:      ip,
		})
	}

	return &DeviceStatusResponse{
		Status:         status,
		DaysLeft:       daysLeft,
		TrialEnd:       formatDate(d.TrialEnd),
		ManualOverride: d.ManualOverride,
	}, nil
}
