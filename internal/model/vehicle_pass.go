package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VehiclePass is a single detection event: a vehicle passed a detector at
// a point in time. Rows are append-only and never updated.
type VehiclePass struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DetectorID uuid.UUID `gorm:"type:uuid;not null;index:idx_vehicle_passes_detector_ts,priority:1" json:"detector_id"`
	VehicleID  string    `gorm:"type:varchar(100);not null;index:idx_vehicle_passes_vehicle_ts,priority:1" json:"vehicle_id"`
	Timestamp  time.Time `gorm:"not null;index;index:idx_vehicle_passes_detector_ts,priority:2;index:idx_vehicle_passes_vehicle_ts,priority:2" json:"timestamp"`
	SpeedKmh   *float64  `json:"speed_kmh"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (VehiclePass) TableName() string {
	return "vehicle_passes"
}

func (p *VehiclePass) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
