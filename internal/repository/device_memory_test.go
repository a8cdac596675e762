package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvplabs/nvp-backend/internal/models"
)

func testDevice(fp, uid string) *models.Device {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return &models.Device{
		DeviceFingerprint: fp,
		UID:               uid,
		PinHash:           "$2a$10$hash",
		Platform:          models.PlatformAndroid,
		OSVersion:         "14",
		DeviceModel:       "Pixel 8",
		Architecture:      models.ArchARM64,
		PlayerVersion:     "2.4.0",
		AppBuild:          1,
		Status:            models.StatusTrial,
		DaysLeft:          7,
		FirstSeen:         now,
		LastSeen:          now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestMemoryInsertIfAbsent(t *testing.T) {
	store := NewMemoryDeviceStore()
	ctx := context.Background()

	require.NoError(t, store.InsertIfAbsent(ctx, testDevice("fp-1", "NVP-AAAAAA")))

	// Same fingerprint again: silent no-op, first record survives.
	require.NoError(t, store.InsertIfAbsent(ctx, testDevice("fp-1", "NVP-BBBBBB")))
	d, err := store.FindByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "NVP-AAAAAA", d.UID)

	// Different fingerprint, taken UID: conflict.
	err = store.InsertIfAbsent(ctx, testDevice("fp-2", "NVP-AAAAAA"))
	assert.ErrorIs(t, err, ErrUIDConflict)

	// FindByUID resolves to the owner.
	d, err = store.FindByUID(ctx, "NVP-AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "fp-1", d.DeviceFingerprint)
}

func TestMemoryFindNotFound(t *testing.T) {
	store := NewMemoryDeviceStore()
	ctx := context.Background()

	_, err := store.FindByFingerprint(ctx, "missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	_, err = store.FindByUID(ctx, "NVP-ZZZZZZ")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	store := NewMemoryDeviceStore()
	ctx := context.Background()

	require.NoError(t, store.InsertIfAbsent(ctx, testDevice("fp-1", "NVP-AAAAAA")))

	d, err := store.FindByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	d.Status = models.StatusBanned // caller-side mutation must not leak

	again, err := store.FindByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrial, again.Status)
}

func TestMemoryListFilters(t *testing.T) {
	store := NewMemoryDeviceStore()
	ctx := context.Background()

	a := testDevice("fp-1", "NVP-AAAAAA")
	b := testDevice("fp-2", "NVP-BBBBBB")
	b.Platform = models.PlatformWindows
	b.Status = models.StatusExpired
	require.NoError(t, store.InsertIfAbsent(ctx, a))
	require.NoError(t, store.InsertIfAbsent(ctx, b))

	devices, total, err := store.List(ctx, ListFilter{Status: models.StatusExpired})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, devices, 1)
	assert.Equal(t, "fp-2", devices[0].DeviceFingerprint)

	devices, total, err = store.List(ctx, ListFilter{Search: "pixel"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, devices, 2)

	_, total, err = store.List(ctx, ListFilter{Platform: models.PlatformMac})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestMemoryListNegativeOffset(t *testing.T) {
	store := NewMemoryDeviceStore()
	ctx := context.Background()

	require.NoError(t, store.InsertIfAbsent(ctx, testDevice("fp-1", "NVP-AAAAAA")))
	require.NoError(t, store.InsertIfAbsent(ctx, testDevice("fp-2", "NVP-BBBBBB")))

	devices, total, err := store.List(ctx, ListFilter{Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, devices, 2)

	devices, total, err = store.List(ctx, ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Empty(t, devices)
}
