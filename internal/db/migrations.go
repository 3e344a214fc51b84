package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS detectors (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		external_id VARCHAR(100) NOT NULL,
		name VARCHAR(200) NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_detectors_external_id ON detectors (external_id);`,
	`CREATE TABLE IF NOT EXISTS vehicle_passes (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		detector_id UUID NOT NULL REFERENCES detectors (id) ON DELETE CASCADE,
		vehicle_id VARCHAR(100) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		speed_kmh DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_passes_timestamp ON vehicle_passes (timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_passes_vehicle_ts ON vehicle_passes (vehicle_id, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_passes_detector_ts ON vehicle_passes (detector_id, timestamp);`,
}

func RunMigrations(database *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := database.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
