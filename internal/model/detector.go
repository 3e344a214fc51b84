package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Detector is a fixed sensor node in the road network.
// ExternalID is the stable business key coming from uploads; detectors
// auto-created from event rows have no name and no position.
type Detector struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"external_id"`
	Name       string    `gorm:"type:varchar(200)" json:"name"`
	Latitude   *float64  `json:"latitude"`
	Longitude  *float64  `json:"longitude"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Detector) TableName() string {
	return "detectors"
}

func (d *Detector) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (d *Detector) HasPosition() bool {
	return d.Latitude != nil && d.Longitude != nil
}
