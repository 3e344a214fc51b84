package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"traffic-service/internal/cache"
	"traffic-service/internal/model"
)

// RouteClient is the external point-to-point road routing lookup.
type RouteClient interface {
	Route(ctx context.Context, from, to model.GeoPoint) ([]model.GeoPoint, error)
}

// RouteSnapService turns raw waypoints into road-following polylines. Each
// endpoint pair is memoized in an injected LRU keyed by the coordinates at
// 6-decimal precision; a failed lookup falls back to the straight two-point
// segment, which is cached too so repeated failures do not call out again.
type RouteSnapService struct {
	client RouteClient
	cache  *cache.LRU[[]model.GeoPoint]
	log    zerolog.Logger
}

func NewRouteSnapService(client RouteClient, routeCache *cache.LRU[[]model.GeoPoint], log zerolog.Logger) *RouteSnapService {
	return &RouteSnapService{client: client, cache: routeCache, log: log}
}

// Snap returns the road-snapped polyline between two points, both endpoints
// included. It never fails: any routing error yields [a, b].
func (s *RouteSnapService) Snap(ctx context.Context, a, b model.GeoPoint) []model.GeoPoint {
	key := snapKey(a, b)
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}

	points, err := s.client.Route(ctx, a, b)
	if err != nil {
		s.log.Warn().Err(err).Msg("road snap failed, using straight segment")
		points = []model.GeoPoint{a, b}
	}

	s.cache.Add(key, points)
	return points
}

// SnapPath snaps each consecutive waypoint pair and concatenates the
// polylines, dropping the duplicated junction point between segments.
func (s *RouteSnapService) SnapPath(ctx context.Context, waypoints []model.GeoPoint) ([]model.GeoPoint, error) {
	if len(waypoints) < 2 {
		return nil, ErrInvalidInput
	}

	var polyline []model.GeoPoint
	for i := 0; i+1 < len(waypoints); i++ {
		segment := s.Snap(ctx, waypoints[i], waypoints[i+1])
		if i > 0 && len(segment) > 0 {
			segment = segment[1:]
		}
		polyline = append(polyline, segment...)
	}
	return polyline, nil
}

// SnapSegments snaps independent waypoint lists, preserving input order.
func (s *RouteSnapService) SnapSegments(ctx context.Context, segments [][]model.GeoPoint) ([][]model.GeoPoint, error) {
	polylines := make([][]model.GeoPoint, 0, len(segments))
	for _, waypoints := range segments {
		polyline, err := s.SnapPath(ctx, waypoints)
		if err != nil {
			return nil, err
		}
		polylines = append(polylines, polyline)
	}
	return polylines, nil
}

// snapKey canonicalizes an endpoint pair at ~0.1 m precision.
func snapKey(a, b model.GeoPoint) string {
	return fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}
