package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"traffic-service/internal/repository"
)

// PathPoint is one detection on a reconstructed vehicle path.
type PathPoint struct {
	DetectorID uuid.UUID `json:"detector_id"`
	Timestamp  time.Time `json:"timestamp"`
	SpeedKmh   *float64  `json:"speed_kmh"`
}

// PathService reconstructs the chronological detection sequence of a
// single vehicle. A vehicle with no history yields an empty path.
type PathService struct {
	passRepo *repository.VehiclePassRepository
}

func NewPathService(passRepo *repository.VehiclePassRepository) *PathService {
	return &PathService{passRepo: passRepo}
}

func (s *PathService) Path(ctx context.Context, vehicleID string, start, end *time.Time) ([]PathPoint, error) {
	passes, err := s.passRepo.ListByVehicle(ctx, vehicleID, start, end)
	if err != nil {
		return nil, err
	}

	path := make([]PathPoint, 0, len(passes))
	for _, pass := range passes {
		path = append(path, PathPoint{
			DetectorID: pass.DetectorID,
			Timestamp:  pass.Timestamp,
			SpeedKmh:   pass.SpeedKmh,
		})
	}
	return path, nil
}
