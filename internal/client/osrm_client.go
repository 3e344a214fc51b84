package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"traffic-service/internal/config"
	"traffic-service/internal/model"
)

// OSRMClient looks up road-following paths between two points from an
// OSRM-compatible routing server. Requests carry a bounded timeout and are
// never retried; callers fall back to a straight segment on any failure.
type OSRMClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOSRMClient(cfg *config.Config) *OSRMClient {
	timeout := cfg.Routing.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OSRMClient{
		baseURL: cfg.Routing.OSRMBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the road-snapped polyline from one point to another,
// including both endpoints.
func (c *OSRMClient) Route(ctx context.Context, from, to model.GeoPoint) ([]model.GeoPoint, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("routing service URL is not configured")
	}

	// OSRM takes lon,lat pairs.
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, from.Longitude, from.Latitude, to.Longitude, to.Latitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response osrmResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Code != "Ok" || len(response.Routes) == 0 {
		return nil, fmt.Errorf("no route found (code %q)", response.Code)
	}

	coords := response.Routes[0].Geometry.Coordinates
	points := make([]model.GeoPoint, 0, len(coords))
	for _, pair := range coords {
		if len(pair) < 2 {
			return nil, fmt.Errorf("malformed coordinate in response")
		}
		points = append(points, model.GeoPoint{Latitude: pair[1], Longitude: pair[0]})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("empty route geometry")
	}
	return points, nil
}
