package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/nvplabs/nvp-backend/internal/models"
)

// PostgresDeviceStore implements AdminStore on top of the devices table.
type PostgresDeviceStore struct {
	db *sql.DB
}

// NewPostgresDeviceStore wraps an open database handle. The handle is owned
// by the caller (main connects and disconnects it).
func NewPostgresDeviceStore(db *sql.DB) *PostgresDeviceStore {
	return &PostgresDeviceStore{db: db}
}

const deviceColumns = `id, device_fingerprint, uid, pin_hash, pin_created_at,
	platform, os_version, device_model, architecture, player_version, app_build, ip_address,
	status, trial_start, trial_end, days_left, extended_count, manual_override, notes,
	first_seen, last_seen, created_at, updated_at`

func scanDevice(row interface{ Scan(...interface{}) error }) (*models.Device, error) {
	var d models.Device
	var ip, notes sql.NullString
	var pinCreated, trialStart, trialEnd sql.NullTime
	err := row.Scan(
		&d.ID, &d.DeviceFingerprint, &d.UID, &d.PinHash, &pinCreated,
		&d.Platform, &d.OSVersion, &d.DeviceModel, &d.Architecture, &d.PlayerVersion, &d.AppBuild, &ip,
		&d.Status, &trialStart, &trialEnd, &d.DaysLeft, &d.ExtendedCount, &d.ManualOverride, &notes,
		&d.FirstSeen, &d.LastSeen, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.IPAddress = ip.String
	d.Notes = notes.String
	d.PinCreatedAt = nullableTime(pinCreated)
	d.TrialStart = nullableTime(trialStart)
	d.TrialEnd = nullableTime(trialEnd)
	return &d, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (s *PostgresDeviceStore) FindByFingerprint(ctx context.Context, fingerprint string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE device_fingerprint = $1
	`, fingerprint)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device by fingerprint: %w", err)
	}
	return d, nil
}

func (s *PostgresDeviceStore) FindByUID(ctx context.Context, uid string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE uid = $1
	`, uid)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device by uid: %w", err)
	}
	return d, nil
}

// InsertIfAbsent relies on the UNIQUE constraint on device_fingerprint:
// ON CONFLICT DO NOTHING makes the losing writer's insert a silent no-op,
// so the caller's read-back decides who won. A unique violation on the uid
// column (a different device already holds the UID) surfaces as
// ErrUIDConflict so the generator can retry.
func (s *PostgresDeviceStore) InsertIfAbsent(ctx context.Context, d *models.Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (
			device_fingerprint, uid, pin_hash, pin_created_at,
			platform, os_version, device_model, architecture, player_version, app_build, ip_address,
			status, trial_start, trial_end, days_left, manual_override,
			first_seen, last_seen, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (device_fingerprint) DO NOTHING
	`,
		d.DeviceFingerprint, d.UID, d.PinHash, d.PinCreatedAt,
		d.Platform, d.OSVersion, d.DeviceModel, d.Architecture, d.PlayerVersion, d.AppBuild, nullString(d.IPAddress),
		d.Status, d.TrialStart, d.TrialEnd, d.DaysLeft, d.ManualOverride,
		d.FirstSeen, d.LastSeen, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "uid") {
			return ErrUIDConflict
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (s *PostgresDeviceStore) UpdateContact(ctx context.Context, fingerprint string, u ContactUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE devices
		SET last_seen = $2, player_version = $3, app_build = $4, ip_address = $5, updated_at = NOW()
		WHERE device_fingerprint = $1
	`, fingerprint, u.LastSeen, u.PlayerVersion, u.AppBuild, nullString(u.IPAddress))
	if err != nil {
		return fmt.Errorf("update device contact: %w", err)
	}
	return nil
}

func (s *PostgresDeviceStore) UpdateDerived(ctx context.Context, fingerprint string, u DerivedUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE devices
		SET last_seen = $2, status = $3, days_left = $4, ip_address = COALESCE($5, ip_address), updated_at = NOW()
		WHERE device_fingerprint = $1
	`, fingerprint, u.LastSeen, u.Status, u.DaysLeft, nullString(u.IPAddress))
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	return nil
}

func (s *PostgresDeviceStore) List(ctx context.Context, f ListFilter) ([]models.Device, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	appendArg := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.Status != "" {
		appendArg("status = $%d", f.Status)
	}
	if f.Platform != "" {
		appendArg("platform = $%d", f.Platform)
	}
	if f.ManualOverride != nil {
		appendArg("manual_override = $%d", *f.ManualOverride)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(device_fingerprint ILIKE $%d OR uid ILIKE $%d OR device_model ILIKE $%d)", n, n, n))
	}

	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count devices: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+deviceColumns+` FROM devices
		WHERE `+whereSQL+`
		ORDER BY last_seen DESC
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list devices: %w", err)
	}
	return devices, total, nil
}

func (s *PostgresDeviceStore) Stats(ctx context.Context) (*models.DeviceStats, error) {
	stats := &models.DeviceStats{Platforms: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM devices GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("device stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("device stats: %w", err)
		}
		stats.Total += n
		switch status {
		case models.StatusTrial:
			stats.Trial = n
		case models.StatusActive:
			stats.Active = n
		case models.StatusExpired:
			stats.Expired = n
		case models.StatusBanned:
			stats.Banned = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("device stats: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, `SELECT platform, COUNT(*) FROM devices GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("device stats: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var platform string
		var n int
		if err := prows.Scan(&platform, &n); err != nil {
			return nil, fmt.Errorf("device stats: %w", err)
		}
		stats.Platforms[platform] = n
	}
	return stats, prows.Err()
}

func (s *PostgresDeviceStore) ApplyAdminUpdate(ctx context.Context, fingerprint string, u AdminUpdate) error {
	set := []string{"updated_at = NOW()"}
	args := []interface{}{fingerprint}

	appendSet := func(col string, v interface{}) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Status != nil {
		appendSet("status", *u.Status)
	}
	if u.TrialEnd != nil {
		appendSet("trial_end", *u.TrialEnd)
	}
	if u.DaysLeft != nil {
		appendSet("days_left", *u.DaysLeft)
	}
	if u.ManualOverride != nil {
		appendSet("manual_override", *u.ManualOverride)
	}
	if u.Notes != nil {
		appendSet("notes", *u.Notes)
	}
	if u.BumpExtended {
		set = append(set, "extended_count = extended_count + 1")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE devices SET `+strings.Join(set, ", ")+` WHERE device_fingerprint = $1
	`, args...)
	if err != nil {
		return fmt.Errorf("admin update device: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// SetPinHash replaces the stored PIN hash. This is the only writer of
// pin_hash after record creation, reached exclusively through the admin
// regenerate-pin flow.
func (s *PostgresDeviceStore) SetPinHash(ctx context.Context, fingerprint, pinHash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE devices SET pin_hash = $2, pin_created_at = $3, updated_at = NOW()
		WHERE device_fingerprint = $1
	`, fingerprint, pinHash, at)
	if err != nil {
		return fmt.Errorf("set pin hash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
