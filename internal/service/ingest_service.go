package service

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"traffic-service/internal/ingest"
	"traffic-service/internal/model"
	"traffic-service/internal/repository"
)

// IngestService loads detector and vehicle-pass uploads into the store.
// Each file is one atomic unit: a fatal decode error aborts the whole
// batch, while malformed rows are skipped and counted.
type IngestService struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewIngestService(db *gorm.DB, log zerolog.Logger) *IngestService {
	return &IngestService{db: db, log: log}
}

type DetectorIngestSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type EventIngestSummary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func (s *IngestService) IngestDetectors(ctx context.Context, filename string, file io.Reader) (*DetectorIngestSummary, error) {
	table, err := ingest.ReadTable(filename, file)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			return nil, ErrUnsupportedFile
		}
		return nil, ErrInvalidInput
	}

	rows := ingest.ParseDetectorRows(table)
	summary := &DetectorIngestSummary{Skipped: rows.Skipped}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		detectorRepo := repository.NewDetectorRepository(tx)
		for _, row := range rows.Accepted {
			_, created, err := detectorRepo.Upsert(ctx, row.ExternalID, row.Name, row.Latitude, row.Longitude)
			if err != nil {
				return err
			}
			if created {
				summary.Created++
			} else {
				summary.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("file", filename).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Msg("detectors ingested")
	return summary, nil
}

func (s *IngestService) IngestVehiclePasses(ctx context.Context, filename string, file io.Reader) (*EventIngestSummary, error) {
	table, err := ingest.ReadTable(filename, file)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			return nil, ErrUnsupportedFile
		}
		return nil, ErrInvalidInput
	}

	rows := ingest.ParseEventRows(table)
	summary := &EventIngestSummary{Skipped: rows.Skipped}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		detectorRepo := repository.NewDetectorRepository(tx)
		passRepo := repository.NewVehiclePassRepository(tx)

		// Unknown detector ids are auto-created without a position; the
		// cache keeps one lookup per distinct id within the batch.
		detectors := make(map[string]*model.Detector)
		passes := make([]model.VehiclePass, 0, len(rows.Accepted))

		for _, row := range rows.Accepted {
			detector, ok := detectors[row.DetectorExternalID]
			if !ok {
				var err error
				detector, err = detectorRepo.GetOrCreate(ctx, row.DetectorExternalID)
				if err != nil {
					return err
				}
				detectors[row.DetectorExternalID] = detector
			}
			passes = append(passes, model.VehiclePass{
				DetectorID: detector.ID,
				VehicleID:  row.VehicleID,
				Timestamp:  row.Timestamp,
				SpeedKmh:   row.SpeedKmh,
			})
		}

		if err := passRepo.CreateBatch(ctx, passes); err != nil {
			return err
		}
		summary.Created = len(passes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("file", filename).
		Int("created", summary.Created).
		Int("skipped", summary.Skipped).
		Msg("vehicle passes ingested")
	return summary, nil
}
