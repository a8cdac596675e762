package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvplabs/nvp-backend/internal/audit"
	"github.com/nvplabs/nvp-backend/internal/models"
	"github.com/nvplabs/nvp-backend/internal/repository"
)

func newTestStatusEngine(t *testing.T) (*RegistrationEngine, *StatusEngine, *repository.MemoryDeviceStore, *audit.MemorySink) {
	t.Helper()
	store := repository.NewMemoryDeviceStore()
	sink := audit.NewMemorySink()
	return NewRegistrationEngine(store, sink, 7), NewStatusEngine(store, sink), store, sink
}

func TestCheckStatusUnknownDevice(t *testing.T) {
	_, engine, _, _ := newTestStatusEngine(t)

	_, err := engine.CheckStatus(context.Background(), "never-seen", "203.0.113.7")
	assert.ErrorIs(t, err, repository.ErrDeviceNotFound)
}

func TestCheckStatusDoesNotRegister(t *testing.T) {
	_, engine, store, _ := newTestStatusEngine(t)

	_, err := engine.CheckStatus(context.Background(), "never-seen", "203.0.113.7")
	require.Error(t, err)

	// A failed status check must not create a record.
	_, err = store.FindByFingerprint(context.Background(), "never-seen")
	assert.ErrorIs(t, err, repository.ErrDeviceNotFound)
}

func TestCheckStatusRecomputesDaysLeft(t *testing.T) {
	reg, engine, store, _ := newTestStatusEngine(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return t0 }

	_, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	engine.now = func() time.Time { return t0.AddDate(0, 0, 3) }
	resp, err := engine.CheckStatus(context.Background(), "fp-abc", "203.0.113.7")
	require.NoError(t, err)

	assert.Equal(t, models.StatusTrial, resp.Status)
	assert.Equal(t, 4, resp.DaysLeft)
	assert.Empty(t, resp.UID, "status responses never expose the uid")
	assert.Empty(t, resp.Pin)

	// Derived values are persisted.
	stored, err := store.FindByFingerprint(context.Background(), "fp-abc")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.DaysLeft)
}

func TestCheckStatusAutoExpiryIsOneWay(t *testing.T) {
	reg, engine, _, sink := newTestStatusEngine(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return t0 }

	_, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	engine.now = func() time.Time { return t0.AddDate(0, 0, 8) }
	resp, err := engine.CheckStatus(context.Background(), "fp-abc", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, resp.Status)
	assert.Equal(t, 0, resp.DaysLeft)
	assert.Equal(t, 1, sink.CountByAction(audit.ActionTrialExpired))

	// A second check stays expired and does not emit a second transition.
	resp, err = engine.CheckStatus(context.Background(), "fp-abc", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, resp.Status)
	assert.Equal(t, 1, sink.CountByAction(audit.ActionTrialExpired))
}

func TestCheckStatusManualOverrideFreezesValues(t *testing.T) {
	reg, engine, store, _ := newTestStatusEngine(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return t0 }

	_, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	// Admin froze the device as active with 30 days, trial long past.
	override := true
	status := models.StatusActive
	days := 30
	require.NoError(t, store.ApplyAdminUpdate(context.Background(), "fp-abc", repository.AdminUpdate{
		Status:         &status,
		DaysLeft:       &days,
		ManualOverride: &override,
	}))

	engine.now = func() time.Time { return t0.AddDate(1, 0, 0) }
	for i := 0; i < 3; i++ {
		resp, err := engine.CheckStatus(context.Background(), "fp-abc", "203.0.113.7")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, resp.Status)
		assert.Equal(t, 30, resp.DaysLeft)
		assert.True(t, resp.ManualOverride)
	}
}

func TestCheckStatusNeverRevivesBannedDevice(t *testing.T) {
	reg, engine, store, _ := newTestStatusEngine(t)

	_, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	status := models.StatusBanned
	override := true
	require.NoError(t, store.ApplyAdminUpdate(context.Background(), "fp-abc", repository.AdminUpdate{
		Status:         &status,
		ManualOverride: &override,
	}))

	resp, err := engine.CheckStatus(context.Background(), "fp-abc", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBanned, resp.Status)
}
