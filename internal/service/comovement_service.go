package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"traffic-service/internal/model"
	"traffic-service/internal/repository"
)

const (
	DefaultComovementK       = 3
	DefaultComovementDt      = 300 * time.Second
	DefaultComovementMaxLead = 2
)

// ComovementParams tunes companion detection: K is the minimum consecutive
// matched detectors, Dt the time-alignment tolerance, MaxLead the allowed
// net lead/lag in node count.
type ComovementParams struct {
	K       int
	Dt      time.Duration
	MaxLead int
	Start   *time.Time
	End     *time.Time
}

// ComovementMatch is one vehicle found travelling alongside the target.
type ComovementMatch struct {
	VehicleID    string      `json:"vehicle_id"`
	MatchedNodes int         `json:"matched_node_count"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	DetectorIDs  []uuid.UUID `json:"detectors"`
}

type ComovementService struct {
	pathService *PathService
	passRepo    *repository.VehiclePassRepository
}

func NewComovementService(pathService *PathService, passRepo *repository.VehiclePassRepository) *ComovementService {
	return &ComovementService{pathService: pathService, passRepo: passRepo}
}

// candidateHit pairs one target detection with one candidate detection at
// the same detector within tolerance.
type candidateHit struct {
	detectorID    uuid.UUID
	targetTime    time.Time
	candidateTime time.Time
}

// FindCompanions finds vehicles whose detections align with the target's
// path in time and detector sequence. Results are sorted by matched node
// count descending; ties keep discovery order.
func (s *ComovementService) FindCompanions(ctx context.Context, vehicleID string, p ComovementParams) ([]ComovementMatch, error) {
	if strings.TrimSpace(vehicleID) == "" {
		return nil, ErrInvalidInput
	}
	if p.Dt < 0 || p.MaxLead < 0 {
		return nil, ErrInvalidInput
	}

	path, err := s.pathService.Path(ctx, vehicleID, p.Start, p.End)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return []ComovementMatch{}, nil
	}

	windowStart := path[0].Timestamp.Add(-p.Dt)
	windowEnd := path[len(path)-1].Timestamp.Add(p.Dt)

	detectorIDs := uniqueDetectors(path)
	others, err := s.passRepo.ListByDetectorsInWindow(ctx, detectorIDs, windowStart, windowEnd, vehicleID)
	if err != nil {
		return nil, err
	}

	byDetector := make(map[uuid.UUID][]model.VehiclePass, len(detectorIDs))
	for _, pass := range others {
		byDetector[pass.DetectorID] = append(byDetector[pass.DetectorID], pass)
	}

	// Candidate hits keyed by vehicle; order preserves first discovery so
	// the final ranking is deterministic across runs.
	hits := make(map[string][]candidateHit)
	var order []string
	for _, point := range path {
		for _, other := range byDetector[point.DetectorID] {
			diff := other.Timestamp.Sub(point.Timestamp)
			if diff < 0 {
				diff = -diff
			}
			if diff > p.Dt {
				continue
			}
			if _, seen := hits[other.VehicleID]; !seen {
				order = append(order, other.VehicleID)
			}
			hits[other.VehicleID] = append(hits[other.VehicleID], candidateHit{
				detectorID:    point.DetectorID,
				targetTime:    point.Timestamp,
				candidateTime: other.Timestamp,
			})
		}
	}

	matches := make([]ComovementMatch, 0, len(order))
	for _, candidate := range order {
		if match, ok := walkCandidate(candidate, hits[candidate], p); ok {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchedNodes > matches[j].MatchedNodes
	})
	return matches, nil
}

// walkCandidate runs the streak/balance walk over one candidate's hits,
// sorted by the target's timestamps. A transition extends the streak when
// the detector changes and the target time does not go backwards; the
// balance leans +1 when the candidate reached the detector strictly before
// the target and -1 otherwise (ties count as lag). The balance check uses
// the walk's final state.
func walkCandidate(vehicleID string, list []candidateHit, p ComovementParams) (ComovementMatch, bool) {
	if len(list) == 0 {
		return ComovementMatch{}, false
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].targetTime.Before(list[j].targetTime)
	})

	streak, balance := 1, 0
	best, bestStart := 1, 0
	streakStart := 0
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if cur.detectorID != prev.detectorID && !cur.targetTime.Before(prev.targetTime) {
			streak++
			if cur.candidateTime.Before(cur.targetTime) {
				balance++
			} else {
				balance--
			}
		} else {
			streak = 1
			balance = 0
			streakStart = i
		}
		if streak > best {
			best = streak
			bestStart = streakStart
		}
	}

	if best < p.K {
		return ComovementMatch{}, false
	}
	if abs(balance) > p.MaxLead {
		return ComovementMatch{}, false
	}

	segment := list[bestStart : bestStart+best]
	detectors := make([]uuid.UUID, 0, len(segment))
	for _, hit := range segment {
		detectors = append(detectors, hit.detectorID)
	}

	return ComovementMatch{
		VehicleID:    vehicleID,
		MatchedNodes: best,
		StartTime:    segment[0].targetTime,
		EndTime:      segment[len(segment)-1].targetTime,
		DetectorIDs:  detectors,
	}, true
}

func uniqueDetectors(path []PathPoint) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(path))
	ids := make([]uuid.UUID, 0, len(path))
	for _, point := range path {
		if _, ok := seen[point.DetectorID]; ok {
			continue
		}
		seen[point.DetectorID] = struct{}{}
		ids = append(ids, point.DetectorID)
	}
	return ids
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
