package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"traffic-service/internal/model"
)

type VehiclePassRepository struct {
	db *gorm.DB
}

func NewVehiclePassRepository(db *gorm.DB) *VehiclePassRepository {
	return &VehiclePassRepository{db: db}
}

func (r *VehiclePassRepository) Create(ctx context.Context, pass *model.VehiclePass) error {
	return r.db.WithContext(ctx).Create(pass).Error
}

func (r *VehiclePassRepository) CreateBatch(ctx context.Context, passes []model.VehiclePass) error {
	if len(passes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(passes, 500).Error
}

// ListByVehicle returns the vehicle's detections ascending by timestamp,
// optionally bounded by the inclusive window.
func (r *VehiclePassRepository) ListByVehicle(ctx context.Context, vehicleID string, start, end *time.Time) ([]model.VehiclePass, error) {
	query := r.db.WithContext(ctx).Where("vehicle_id = ?", vehicleID)
	if start != nil {
		query = query.Where("timestamp >= ?", *start)
	}
	if end != nil {
		query = query.Where("timestamp <= ?", *end)
	}
	var passes []model.VehiclePass
	err := query.Order("timestamp ASC").Find(&passes).Error
	return passes, err
}

// ListByDetectorsInWindow returns detections at any of the given detectors
// inside the inclusive window, excluding one vehicle, ascending by timestamp.
func (r *VehiclePassRepository) ListByDetectorsInWindow(ctx context.Context, detectorIDs []uuid.UUID, start, end time.Time, excludeVehicleID string) ([]model.VehiclePass, error) {
	if len(detectorIDs) == 0 {
		return nil, nil
	}
	var passes []model.VehiclePass
	err := r.db.WithContext(ctx).
		Where("detector_id IN ?", detectorIDs).
		Where("timestamp >= ? AND timestamp <= ?", start, end).
		Where("vehicle_id <> ?", excludeVehicleID).
		Order("timestamp ASC").
		Find(&passes).Error
	return passes, err
}

// ListInWindow returns every detection in the inclusive window grouped for
// per-vehicle traversal: ordered by vehicle id, then timestamp.
func (r *VehiclePassRepository) ListInWindow(ctx context.Context, start, end time.Time) ([]model.VehiclePass, error) {
	var passes []model.VehiclePass
	err := r.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", start, end).
		Order("vehicle_id ASC, timestamp ASC").
		Find(&passes).Error
	return passes, err
}
