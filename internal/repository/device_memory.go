package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvplabs/nvp-backend/internal/models"
)

// MemoryDeviceStore is an in-memory AdminStore for development and tests.
// It mirrors the Postgres store's semantics, including atomic
// insert-if-absent under concurrent registration.
type MemoryDeviceStore struct {
	mu    sync.Mutex
	byFP  map[string]*models.Device
	byUID map[string]string // uid -> fingerprint
}

func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{
		byFP:  make(map[string]*models.Device),
		byUID: make(map[string]string),
	}
}

func copyDevice(d *models.Device) *models.Device {
	cp := *d
	return &cp
}

func (s *MemoryDeviceStore) FindByFingerprint(_ context.Context, fingerprint string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byFP[fingerprint]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return copyDevice(d), nil
}

func (s *MemoryDeviceStore) FindByUID(_ context.Context, uid string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.byUID[uid]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return copyDevice(s.byFP[fp]), nil
}

func (s *MemoryDeviceStore) InsertIfAbsent(_ context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byFP[d.DeviceFingerprint]; exists {
		// Losing writer: silent no-op, caller re-reads to find the winner.
		return nil
	}
	if _, taken := s.byUID[d.UID]; taken {
		return ErrUIDConflict
	}
	cp := copyDevice(d)
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	s.byFP[cp.DeviceFingerprint] = cp
	s.byUID[cp.UID] = cp.DeviceFingerprint
	return nil
}

func (s *MemoryDeviceStore) UpdateContact(_ context.Context, fingerprint string, u ContactUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byFP[fingerprint]
	if !ok {
		return ErrDeviceNotFound
	}
	d.LastSeen = u.LastSeen
	d.PlayerVersion = u.PlayerVersion
	d.AppBuild = u.AppBuild
	if u.IPAddress != "" {
		d.IPAddress = u.IPAddress
	}
	d.UpdatedAt = u.LastSeen
	return nil
}

func (s *MemoryDeviceStore) UpdateDerived(_ context.Context, fingerprint string, u DerivedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byFP[fingerprint]
	if !ok {
		return ErrDeviceNotFound
	}
	d.LastSeen = u.LastSeen
	d.Status = u.Status
	d.DaysLeft = u.DaysLeft
	if u.IPAddress != "" {
		d.IPAddress = u.IPAddress
	}
	d.UpdatedAt = u.LastSeen
	return nil
}

func (s *MemoryDeviceStore) List(_ context.Context, f ListFilter) ([]models.Device, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Device
	for _, d := range s.byFP {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.Platform != "" && d.Platform != f.Platform {
			continue
		}
		if f.ManualOverride != nil && d.ManualOverride != *f.ManualOverride {
			continue
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(d.DeviceFingerprint), q) &&
				!strings.Contains(strings.ToLower(d.UID), q) &&
				!strings.Contains(strings.ToLower(d.DeviceModel), q) {
				continue
			}
		}
		matched = append(matched, *d)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastSeen.After(matched[j].LastSeen)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemoryDeviceStore) Stats(_ context.Context) (*models.DeviceStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &models.DeviceStats{Platforms: make(map[string]int)}
	for _, d := range s.byFP {
		stats.Total++
		switch d.Status {
		case models.StatusTrial:
			stats.Trial++
		case models.StatusActive:
			stats.Active++
		case models.StatusExpired:
			stats.Expired++
		case models.StatusBanned:
			stats.Banned++
		}
		stats.Platforms[d.Platform]++
	}
	return stats, nil
}

func (s *MemoryDeviceStore) ApplyAdminUpdate(_ context.Context, fingerprint string, u AdminUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byFP[fingerprint]
	if !ok {
		return ErrDeviceNotFound
	}
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.TrialEnd != nil {
		v := *u.TrialEnd
		d.TrialEnd = &v
	}
	if u.DaysLeft != nil {
		d.DaysLeft = *u.DaysLeft
	}
	if u.ManualOverride != nil {
		d.ManualOverride = *u.ManualOverride
	}
	if u.Notes != nil {
		d.Notes = *u.Notes
	}
	if u.BumpExtended {
		d.ExtendedCount++
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryDeviceStore) SetPinHash(_ context.Context, fingerprint, pinHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byFP[fingerprint]
	if !ok {
		return ErrDeviceNotFound
	}
	d.PinHash = pinHash
	d.PinCreatedAt = &at
	d.UpdatedAt = at
	return nil
}
