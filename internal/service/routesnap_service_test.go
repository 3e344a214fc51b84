package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-service/internal/cache"
	"traffic-service/internal/model"
)

// stubRouteClient counts upstream calls and serves canned routes.
type stubRouteClient struct {
	calls  int
	err    error
	points []model.GeoPoint
}

func (s *stubRouteClient) Route(ctx context.Context, from, to model.GeoPoint) ([]model.GeoPoint, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.points != nil {
		return s.points, nil
	}
	// Road shape: both endpoints plus one intermediate bend.
	mid := model.GeoPoint{
		Latitude:  (from.Latitude + to.Latitude) / 2,
		Longitude: (from.Longitude + to.Longitude) / 2,
	}
	return []model.GeoPoint{from, mid, to}, nil
}

func newSnapService(client RouteClient) *RouteSnapService {
	return NewRouteSnapService(client, cache.NewLRU[[]model.GeoPoint](100), zerolog.Nop())
}

func TestRouteSnapService_Snap(t *testing.T) {
	a := model.GeoPoint{Latitude: 55.75, Longitude: 37.62}
	b := model.GeoPoint{Latitude: 55.76, Longitude: 37.63}

	t.Run("returns the upstream polyline", func(t *testing.T) {
		client := &stubRouteClient{}
		svc := newSnapService(client)

		polyline := svc.Snap(context.Background(), a, b)
		require.Len(t, polyline, 3)
		assert.Equal(t, a, polyline[0])
		assert.Equal(t, b, polyline[2])
	})

	t.Run("falls back to the straight segment on failure", func(t *testing.T) {
		client := &stubRouteClient{err: errors.New("connection refused")}
		svc := newSnapService(client)

		polyline := svc.Snap(context.Background(), a, b)
		assert.Equal(t, []model.GeoPoint{a, b}, polyline)
	})

	t.Run("caches results including fallbacks", func(t *testing.T) {
		client := &stubRouteClient{err: errors.New("timeout")}
		svc := newSnapService(client)

		first := svc.Snap(context.Background(), a, b)
		second := svc.Snap(context.Background(), a, b)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, client.calls, "second lookup must be served from cache")
	})

	t.Run("cache key rounds to six decimals", func(t *testing.T) {
		client := &stubRouteClient{}
		svc := newSnapService(client)

		svc.Snap(context.Background(), a, b)
		jittered := model.GeoPoint{Latitude: a.Latitude + 1e-9, Longitude: a.Longitude}
		svc.Snap(context.Background(), jittered, b)
		assert.Equal(t, 1, client.calls)
	})
}

func TestRouteSnapService_SnapPath(t *testing.T) {
	client := &stubRouteClient{}
	svc := newSnapService(client)

	waypoints := []model.GeoPoint{
		{Latitude: 55.75, Longitude: 37.62},
		{Latitude: 55.76, Longitude: 37.63},
		{Latitude: 55.77, Longitude: 37.64},
	}

	polyline, err := svc.SnapPath(context.Background(), waypoints)
	require.NoError(t, err)

	// Two 3-point segments sharing the junction: 3 + 2 after dedupe.
	require.Len(t, polyline, 5)
	assert.Equal(t, waypoints[0], polyline[0])
	assert.Equal(t, waypoints[1], polyline[2])
	assert.Equal(t, waypoints[2], polyline[4])
	assert.Equal(t, 2, client.calls)

	t.Run("rejects fewer than two waypoints", func(t *testing.T) {
		_, err := svc.SnapPath(context.Background(), waypoints[:1])
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRouteSnapService_SnapSegments(t *testing.T) {
	client := &stubRouteClient{}
	svc := newSnapService(client)

	segments := [][]model.GeoPoint{
		{{Latitude: 1, Longitude: 1}, {Latitude: 2, Longitude: 2}},
		{{Latitude: 3, Longitude: 3}, {Latitude: 4, Longitude: 4}},
	}

	polylines, err := svc.SnapSegments(context.Background(), segments)
	require.NoError(t, err)
	require.Len(t, polylines, 2)
	assert.Equal(t, segments[0][0], polylines[0][0])
	assert.Equal(t, segments[1][0], polylines[1][0])

	t.Run("invalid segment fails the batch", func(t *testing.T) {
		_, err := svc.SnapSegments(context.Background(), [][]model.GeoPoint{{{Latitude: 1, Longitude: 1}}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
