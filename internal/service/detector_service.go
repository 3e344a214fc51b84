package service

import (
	"context"

	"github.com/google/uuid"

	"traffic-service/internal/model"
	"traffic-service/internal/repository"
)

type DetectorService struct {
	detectorRepo *repository.DetectorRepository
}

func NewDetectorService(detectorRepo *repository.DetectorRepository) *DetectorService {
	return &DetectorService{detectorRepo: detectorRepo}
}

func (s *DetectorService) List(ctx context.Context) ([]model.Detector, error) {
	return s.detectorRepo.List(ctx)
}

// GetByExternalID returns the detector with the given business key or
// ErrNotFound when no such detector exists.
func (s *DetectorService) GetByExternalID(ctx context.Context, externalID string) (*model.Detector, error) {
	detector, err := s.detectorRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, ErrNotFound
	}
	return detector, nil
}

// GetByIDs returns the detectors for the given ids, in no particular order.
func (s *DetectorService) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Detector, error) {
	return s.detectorRepo.ListByIDs(ctx, ids)
}
