package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

var PostgresDB *sql.DB

// ConnectPostgres connects to PostgreSQL database
func ConnectPostgres(postgresURI string) error {
	var err error

	PostgresDB, err = sql.Open("postgres", postgresURI)
	if err != nil {
		return err
	}

	// Set connection pool settings
	PostgresDB.SetMaxOpenConns(25)
	PostgresDB.SetMaxIdleConns(5)
	PostgresDB.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err = PostgresDB.Ping(); err != nil {
		return err
	}

	log.Println("✅ Connected to PostgreSQL")

	// Initialize tables
	if err = InitPostgresTables(); err != nil {
		return err
	}

	return nil
}

// InitPostgresTables creates all necessary tables if they don't exist
func InitPostgresTables() error {
	queries := []string{
		// Devices table. The UNIQUE constraints on device_fingerprint and uid
		// are what make concurrent first-contact registration safe: the losing
		// writer's insert is a no-op and the read-back decides who won.
		`CREATE TABLE IF NOT EXISTS devices (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			device_fingerprint VARCHAR(255) NOT NULL UNIQUE,
			uid VARCHAR(20) NOT NULL UNIQUE,
			pin_hash VARCHAR(255) NOT NULL,
			pin_created_at TIMESTAMP,
			platform VARCHAR(20) NOT NULL,
			os_version VARCHAR(100) NOT NULL,
			device_model VARCHAR(255) NOT NULL,
			architecture VARCHAR(20) NOT NULL,
			player_version VARCHAR(50) NOT NULL,
			app_build INTEGER NOT NULL DEFAULT 1,
			ip_address VARCHAR(255),
			status VARCHAR(20) NOT NULL DEFAULT 'trial',
			trial_start TIMESTAMP,
			trial_end TIMESTAMP,
			days_left INTEGER NOT NULL DEFAULT 0,
			extended_count INTEGER NOT NULL DEFAULT 0,
			manual_override BOOLEAN NOT NULL DEFAULT FALSE,
			notes TEXT,
			first_seen TIMESTAMP NOT NULL DEFAULT NOW(),
			last_seen TIMESTAMP NOT NULL DEFAULT NOW(),
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,

		// Create indexes for better performance
		`CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_platform ON devices(platform)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_trial_end ON devices(trial_end)`,
	}

	for _, query := range queries {
		if _, err := PostgresDB.Exec(query); err != nil {
			return err
		}
	}

	log.Println("✅ PostgreSQL tables initialized")
	return nil
}

// DisconnectPostgres closes the PostgreSQL connection
func DisconnectPostgres() error {
	if PostgresDB != nil {
		return PostgresDB.Close()
	}
	return nil
}
