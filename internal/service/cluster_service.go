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
	DefaultClusterTop    = 10
	DefaultClusterMinLen = 3
)

type ClusterParams struct {
	Start  time.Time
	End    time.Time
	Top    int
	MinLen int
}

// RouteCluster is one discovered popular route: the exact normalized
// detector sequence shared by VehicleCount traversals in the window.
type RouteCluster struct {
	Path             []uuid.UUID `json:"path"`
	VehicleCount     int         `json:"vehicle_count"`
	IntensityPerHour float64     `json:"intensity_per_hour"`
	AvgSpeedKmh      *float64    `json:"avg_speed_kmh"`
	AvgTravelSeconds *float64    `json:"avg_travel_seconds"`
}

type ClusterService struct {
	passRepo *repository.VehiclePassRepository
}

func NewClusterService(passRepo *repository.VehiclePassRepository) *ClusterService {
	return &ClusterService{passRepo: passRepo}
}

type routeAggregate struct {
	path        []uuid.UUID
	count       int
	durationSum float64
	speedSum    float64
	speedCount  int
}

// ClusterRoutes groups vehicle paths in the window by exact normalized
// detector sequence and returns the Top most traveled ones. Aggregation is
// keyed strictly by the signature tuple, so results do not depend on
// processing order.
func (s *ClusterService) ClusterRoutes(ctx context.Context, p ClusterParams) ([]RouteCluster, error) {
	if p.End.Before(p.Start) {
		return nil, ErrInvalidInput
	}
	if p.Top <= 0 || p.MinLen < 1 {
		return nil, ErrInvalidInput
	}

	passes, err := s.passRepo.ListInWindow(ctx, p.Start, p.End)
	if err != nil {
		return nil, err
	}

	aggregates := make(map[string]*routeAggregate)

	flush := func(group []model.VehiclePass) {
		if len(group) == 0 {
			return
		}
		path := normalizeSequence(group)
		if len(path) < p.MinLen {
			return
		}

		signature := routeSignature(path)
		agg, ok := aggregates[signature]
		if !ok {
			agg = &routeAggregate{path: path}
			aggregates[signature] = agg
		}
		agg.count++
		agg.durationSum += group[len(group)-1].Timestamp.Sub(group[0].Timestamp).Seconds()
		for _, pass := range group {
			if pass.SpeedKmh != nil {
				agg.speedSum += *pass.SpeedKmh
				agg.speedCount++
			}
		}
	}

	var group []model.VehiclePass
	for _, pass := range passes {
		if len(group) > 0 && group[0].VehicleID != pass.VehicleID {
			flush(group)
			group = group[:0]
		}
		group = append(group, pass)
	}
	flush(group)

	signatures := make([]string, 0, len(aggregates))
	for signature := range aggregates {
		signatures = append(signatures, signature)
	}
	sort.Slice(signatures, func(i, j int) bool {
		a, b := aggregates[signatures[i]], aggregates[signatures[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return signatures[i] < signatures[j]
	})
	if len(signatures) > p.Top {
		signatures = signatures[:p.Top]
	}

	hours := p.End.Sub(p.Start).Hours()
	if hours <= 0 {
		// Degenerate window; floor to one second of width.
		hours = 1.0 / 3600
	}

	clusters := make([]RouteCluster, 0, len(signatures))
	for _, signature := range signatures {
		agg := aggregates[signature]
		cluster := RouteCluster{
			Path:             agg.path,
			VehicleCount:     agg.count,
			IntensityPerHour: float64(agg.count) / hours,
		}
		if agg.speedCount > 0 {
			avg := agg.speedSum / float64(agg.speedCount)
			cluster.AvgSpeedKmh = &avg
		}
		if agg.count > 0 {
			avg := agg.durationSum / float64(agg.count)
			cluster.AvgTravelSeconds = &avg
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// normalizeSequence collapses immediately repeated detector ids: a vehicle
// lingering at one detector counts once.
func normalizeSequence(group []model.VehiclePass) []uuid.UUID {
	path := make([]uuid.UUID, 0, len(group))
	for _, pass := range group {
		if len(path) > 0 && path[len(path)-1] == pass.DetectorID {
			continue
		}
		path = append(path, pass.DetectorID)
	}
	return path
}

func routeSignature(path []uuid.UUID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.String()
	}
	return strings.Join(parts, ">")
}
