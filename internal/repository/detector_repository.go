package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"traffic-service/internal/model"
)

type DetectorRepository struct {
	db *gorm.DB
}

func NewDetectorRepository(db *gorm.DB) *DetectorRepository {
	return &DetectorRepository{db: db}
}

// Upsert creates or updates a detector keyed by external id and reports
// whether a new row was created. A duplicate-key error on a racing insert
// is resolved by retrying as an update, never surfaced to the caller.
// A known position is authoritative: an upsert without coordinates keeps
// the stored ones.
func (r *DetectorRepository) Upsert(ctx context.Context, externalID, name string, lat, lon *float64) (*model.Detector, bool, error) {
	existing, err := r.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		detector := &model.Detector{
			ExternalID: externalID,
			Name:       name,
			Latitude:   lat,
			Longitude:  lon,
		}
		err = r.db.WithContext(ctx).Create(detector).Error
		if err == nil {
			return detector, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
		// Lost the insert race, fall through to update.
		existing, err = r.GetByExternalID(ctx, externalID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, gorm.ErrRecordNotFound
		}
	}

	existing.Name = name
	if lat != nil && lon != nil {
		existing.Latitude = lat
		existing.Longitude = lon
	}
	if err := r.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetOrCreate returns the detector with the given external id, creating a
// positionless placeholder when it is unknown. Used by event ingestion.
func (r *DetectorRepository) GetOrCreate(ctx context.Context, externalID string) (*model.Detector, error) {
	existing, err := r.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	detector := &model.Detector{ExternalID: externalID}
	err = r.db.WithContext(ctx).Create(detector).Error
	if err == nil {
		return detector, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return r.GetByExternalID(ctx, externalID)
	}
	return nil, err
}

func (r *DetectorRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Detector, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, nil
	}
	var detector model.Detector
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&detector).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &detector, nil
}

func (r *DetectorRepository) List(ctx context.Context) ([]model.Detector, error) {
	var detectors []model.Detector
	err := r.db.WithContext(ctx).Order("external_id ASC").Find(&detectors).Error
	return detectors, err
}

func (r *DetectorRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Detector, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var detectors []model.Detector
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&detectors).Error
	return detectors, err
}
