package models

import (
	"time"
)

// Device status values. Automatic transitions only ever go trial -> expired;
// active and banned are set by admin actions.
const (
	StatusTrial   = "trial"
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusBanned  = "banned"
)

const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWindows = "windows"
	PlatformMac     = "mac"
)

const (
	ArchARM64 = "arm64"
	ArchX64   = "x64"
)

// Device is one registered player installation, keyed by the opaque
// device fingerprint the client sends. PinHash is never serialized.
type Device struct {
	ID                string     `json:"id"`
	DeviceFingerprint string     `json:"device_id"`
	UID               string     `json:"uid"`
	PinHash           string     `json:"-"`
	PinCreatedAt      *time.Time `json:"pin_created_at,omitempty"`

	Platform      string `json:"platform"`
	OSVersion     string `json:"os_version"`
	DeviceModel   string `json:"device_model"`
	Architecture  string `json:"architecture"`
	PlayerVersion string `json:"player_version"`
	AppBuild      int    `json:"app_build"`
	IPAddress     string `json:"ip_address,omitempty"`

	Status         string     `json:"status"`
	TrialStart     *time.Time `json:"trial_start,omitempty"`
	TrialEnd       *time.Time `json:"trial_end,omitempty"`
	DaysLeft       int        `json:"days_left"`
	ExtendedCount  int        `json:"extended_count"`
	ManualOverride bool       `json:"manual_override"`
	Notes          string     `json:"notes,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceStats summarizes the fleet for the admin dashboard.
type DeviceStats struct {
	Total     int            `json:"total"`
	Trial     int            `json:"trial"`
	Active    int            `json:"active"`
	Expired   int            `json:"expired"`
	Banned    int            `json:"banned"`
	Platforms map[string]int `json:"platforms"`
}

// ValidStatus reports whether s is one of the four device statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusBanned:
		return true
	}
	return false
}
