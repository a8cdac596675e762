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
	"github.com/nvplabs/nvp-backend/pkg/utils"
)

func newTestAdminService(t *testing.T) (*AdminDeviceService, *RegistrationEngine, *repository.MemoryDeviceStore, *audit.MemorySink) {
	t.Helper()
	store := repository.NewMemoryDeviceStore()
	sink := audit.NewMemorySink()
	return NewAdminDeviceService(store, sink, 7), NewRegistrationEngine(store, sink, 7), store, sink
}

func TestApplyActionBanAndUnban(t *testing.T) {
	svc, reg, _, sink := newTestAdminService(t)

	_, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	banned, err := svc.ApplyAction(context.Background(), AdminActionInput{
		DeviceID: "fp-abc",
		Action:   audit.ActionBan,
		AdminID:  "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusBanned, banned.Status)
	assert.True(t, banned.ManualOverride)
	assert.Equal(t, 1, sink.CountByAction(audit.ActionBan))

	unbanned, err := svc.ApplyAction(context.Background(), AdminActionInput{
		DeviceID: "fp-abc",
		Action:   audit.ActionUnban,
		AdminID:  "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrial, unbanned.Status)
	assert.False(t, unbanned.ManualOverride)
	assert.Greater(t, unbanned.DaysLeft, 0)
}

func TestApplyActionExtendTrial(t *testing.T) {
	svc, reg, _, _ := newTestAdminService(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return t0 }
	svc.now = func() time.Time { return t0 }

	_, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	updated, err := svc.ApplyAction(context.Background(), AdminActionInput{
		DeviceID: "fp-abc",
		Action:   audit.ActionExtendTrial,
		Days:     5,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, updated.DaysLeft)
	assert.Equal(t, 1, updated.ExtendedCount)
	require.NotNil(t, updated.TrialEnd)
	assert.Equal(t, t0.AddDate(0, 0, 12), *updated.TrialEnd)
}

func TestApplyActionExtendTrialRevivesExpired(t *testing.T) {
	svc, reg, store, _ := newTestAdminService(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return t0 }
	svc.now = func() time.Time { return t0.AddDate(0, 0, 30) }

	_, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	status := models.StatusExpired
	zero := 0
	require.NoError(t, store.ApplyAdminUpdate(context.Background(), "fp-abc", repository.AdminUpdate{
		Status:   &status,
		DaysLeft: &zero,
	}))

	updated, err := svc.ApplyAction(context.Background(), AdminActionInput{
		DeviceID: "fp-abc",
		Action:   audit.ActionExtendTrial,
		Days:     3,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrial, updated.Status)
	assert.Equal(t, 3, updated.DaysLeft)
}

func TestApplyActionValidation(t *testing.T) {
	svc, reg, _, _ := newTestAdminService(t)

	_, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		input AdminActionInput
	}{
		{"unknown action", AdminActionInput{DeviceID: "fp-abc", Action: "self_destruct"}},
		{"extend without days", AdminActionInput{DeviceID: "fp-abc", Action: audit.ActionExtendTrial}},
		{"set expiry with bad date", AdminActionInput{DeviceID: "fp-abc", Action: audit.ActionSetExpiry, Expiry: "junk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ApplyAction(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidAction)
		})
	}

	_, err = svc.ApplyAction(context.Background(), AdminActionInput{DeviceID: "fp-missing", Action: audit.ActionBan})
	assert.ErrorIs(t, err, repository.ErrDeviceNotFound)
}

func TestRegeneratePIN(t *testing.T) {
	svc, reg, store, sink := newTestAdminService(t)

	first, _, err := reg.Register(context.Background(), registerInput("fp-abc"))
	require.NoError(t, err)

	before, err := store.FindByFingerprint(context.Background(), "fp-abc")
	require.NoError(t, err)

	pin, err := svc.RegeneratePIN(context.Background(), "fp-abc", "admin-1", "203.0.113.7")
	require.NoError(t, err)
	require.Regexp(t, `^[1-9]\d{5}$`, pin)

	after, err := store.FindByFingerprint(context.Background(), "fp-abc")
	require.NoError(t, err)
	assert.NotEqual(t, before.PinHash, after.PinHash)
	assert.True(t, utils.VerifyPIN(pin, after.PinHash))
	assert.False(t, utils.VerifyPIN(first.Pin, after.PinHash), "old pin must stop working")
	assert.Equal(t, 1, sink.CountByAction(audit.ActionRegeneratePin))

	_, err = svc.RegeneratePIN(context.Background(), "fp-missing", "admin-1", "")
	assert.ErrorIs(t, err, repository.ErrDeviceNotFound)
}

func TestDeviceStats(t *testing.T) {
	svc, reg, store, _ := newTestAdminService(t)

	for _, fp := range []string{"fp-1", "fp-2", "fp-3"} {
		_, _, err := reg.Register(context.Background(), registerInput(fp))
		require.NoError(t, err)
	}
	status := models.StatusBanned
	override := true
	require.NoError(t, store.ApplyAdminUpdate(context.Background(), "fp-3", repository.AdminUpdate{
		Status:         &status,
		ManualOverride: &override,
	}))

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Trial)
	assert.Equal(t, 1, stats.Banned)
	assert.Equal(t, 3, stats.Platforms[models.PlatformWindows])
}
