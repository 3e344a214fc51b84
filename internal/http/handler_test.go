package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-service/internal/cache"
	"traffic-service/internal/model"
	"traffic-service/internal/repository"
	"traffic-service/internal/service"
	"traffic-service/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// unreachableRouteClient simulates a routing upstream that is down.
type unreachableRouteClient struct{}

func (unreachableRouteClient) Route(ctx context.Context, from, to model.GeoPoint) ([]model.GeoPoint, error) {
	return nil, errors.New("connection refused")
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.OpenDB(t)
	log := zerolog.Nop()

	detectorRepo := repository.NewDetectorRepository(db)
	passRepo := repository.NewVehiclePassRepository(db)
	pathService := service.NewPathService(passRepo)

	handler := NewHandler(
		service.NewDetectorService(detectorRepo),
		service.NewIngestService(db, log),
		pathService,
		service.NewComovementService(pathService, passRepo),
		service.NewClusterService(passRepo),
		service.NewRouteSnapService(unreachableRouteClient{}, cache.NewLRU[[]model.GeoPoint](100), log),
		log,
	)
	return NewRouter(handler, nil, "test")
}

func uploadRequest(t *testing.T, url, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func doJSON(t *testing.T, router *gin.Engine, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), "body: %s", rec.Body.String())
	return rec.Code, payload
}

func TestIngestAndQueryFlow(t *testing.T) {
	router := newTestRouter(t)

	detectorsCSV := "external_id,name,lat,lon\nD1,Main&1st,55.75,37.62\nD2,Main&2nd,55.76,37.63\n"
	code, payload := doJSON(t, router, uploadRequest(t, "/api/traffic/ingest/detectors", "detectors.csv", detectorsCSV))
	require.Equal(t, http.StatusOK, code)
	data := payload["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["created"])
	assert.EqualValues(t, 0, data["updated"])

	passesCSV := strings.Join([]string{
		"detector,timestamp,vehicle,speed",
		"D1,2024-03-01T08:00:00Z,V1,50",
		"D2,2024-03-01T08:01:00Z,V1,55",
		"D1,2024-03-01T08:00:10Z,V2,49",
		"D2,2024-03-01T08:01:05Z,V2,54",
	}, "\n")
	code, payload = doJSON(t, router, uploadRequest(t, "/api/traffic/ingest/vehicle-passes", "passes.csv", passesCSV))
	require.Equal(t, http.StatusOK, code)
	data = payload["data"].(map[string]interface{})
	assert.EqualValues(t, 4, data["created"])
	assert.EqualValues(t, 0, data["skipped"])

	t.Run("detectors are listed", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/detectors", nil))
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, payload["data"].([]interface{}), 2)
	})

	t.Run("detector detail by external id", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/detectors/D1", nil))
		require.Equal(t, http.StatusOK, code)
		detector := payload["data"].(map[string]interface{})
		assert.Equal(t, "D1", detector["external_id"])
		assert.Equal(t, "Main&1st", detector["name"])
	})

	t.Run("unknown detector is not found", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/detectors/NOPE", nil))
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "not_found", payload["code"])
	})

	t.Run("vehicle path is ordered", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/traffic/vehicle-path?vehicle_id=V1", nil))
		require.Equal(t, http.StatusOK, code)
		data := payload["data"].(map[string]interface{})
		assert.Len(t, data["detector_sequence"].([]interface{}), 2)
		assert.Len(t, data["detectors"].([]interface{}), 2)
		assert.Len(t, data["points"].([]interface{}), 2)
	})

	t.Run("comovement finds the companion", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet,
			"/api/traffic/comovement?vehicle_id=V1&k=2&dt=30&max_lead=2", nil))
		require.Equal(t, http.StatusOK, code)
		data := payload["data"].(map[string]interface{})
		matches := data["matches"].([]interface{})
		require.Len(t, matches, 1)
		match := matches[0].(map[string]interface{})
		assert.Equal(t, "V2", match["vehicle_id"])
		assert.EqualValues(t, 2, match["matched_node_count"])
	})

	t.Run("cluster routes over the window", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet,
			"/api/traffic/cluster-routes?start=2024-03-01T08:00:00Z&end=2024-03-01T09:00:00Z&top=5&min_len=2", nil))
		require.Equal(t, http.StatusOK, code)
		data := payload["data"].(map[string]interface{})
		clusters := data["clusters"].([]interface{})
		require.Len(t, clusters, 1)
		cluster := clusters[0].(map[string]interface{})
		assert.EqualValues(t, 2, cluster["vehicle_count"])
	})
}

func TestVehiclePathKeepsRevisits(t *testing.T) {
	router := newTestRouter(t)

	detectorsCSV := "external_id,name,lat,lon\nD1,Main&1st,55.75,37.62\nD2,Main&2nd,55.76,37.63\n"
	code, _ := doJSON(t, router, uploadRequest(t, "/api/traffic/ingest/detectors", "detectors.csv", detectorsCSV))
	require.Equal(t, http.StatusOK, code)

	passesCSV := strings.Join([]string{
		"detector,timestamp,vehicle,speed",
		"D1,2024-03-01T08:00:00Z,V9,40",
		"D2,2024-03-01T08:05:00Z,V9,42",
		"D1,2024-03-01T08:10:00Z,V9,41",
	}, "\n")
	code, _ = doJSON(t, router, uploadRequest(t, "/api/traffic/ingest/vehicle-passes", "passes.csv", passesCSV))
	require.Equal(t, http.StatusOK, code)

	code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/traffic/vehicle-path?vehicle_id=V9", nil))
	require.Equal(t, http.StatusOK, code)
	data := payload["data"].(map[string]interface{})

	sequence := data["detector_sequence"].([]interface{})
	require.Len(t, sequence, 3)
	assert.Equal(t, sequence[0], sequence[2])
	assert.NotEqual(t, sequence[0], sequence[1])
	assert.Len(t, data["detectors"].([]interface{}), 2)
}

func TestIngestRejections(t *testing.T) {
	router := newTestRouter(t)

	t.Run("unsupported container type", func(t *testing.T) {
		code, payload := doJSON(t, router, uploadRequest(t, "/api/traffic/ingest/detectors", "detectors.pdf", "x"))
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "unsupported_file_type", payload["code"])
	})

	t.Run("missing file part", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/traffic/ingest/detectors", nil)
		code, payload := doJSON(t, router, req)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "missing_file", payload["code"])
	})
}

func TestQueryValidation(t *testing.T) {
	router := newTestRouter(t)

	t.Run("vehicle path requires vehicle_id", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/traffic/vehicle-path", nil))
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_input", payload["code"])
	})

	t.Run("vehicle path rejects bad start", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet,
			"/api/traffic/vehicle-path?vehicle_id=V1&start=tomorrow", nil))
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_range", payload["code"])
	})

	t.Run("comovement rejects non-numeric k", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet,
			"/api/traffic/comovement?vehicle_id=V1&k=many", nil))
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_input", payload["code"])
	})

	t.Run("cluster routes require the window", func(t *testing.T) {
		code, payload := doJSON(t, router, httptest.NewRequest(http.MethodGet,
			"/api/traffic/cluster-routes?start=2024-03-01T08:00:00Z", nil))
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_range", payload["code"])
	})
}

func TestRouteSnapEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("unreachable upstream falls back to straight segments", func(t *testing.T) {
		body := `{"points":[[55.75,37.62],[55.76,37.63]]}`
		req := httptest.NewRequest(http.MethodPost, "/api/traffic/route-snap", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		code, payload := doJSON(t, router, req)
		require.Equal(t, http.StatusOK, code)
		data := payload["data"].(map[string]interface{})
		points := data["points"].([]interface{})
		require.Len(t, points, 2)
		first := points[0].([]interface{})
		assert.InDelta(t, 55.75, first[0].(float64), 1e-9)
		assert.InDelta(t, 37.62, first[1].(float64), 1e-9)
	})

	t.Run("independent segments keep input order", func(t *testing.T) {
		body := `{"segments":[[[1,1],[2,2]],[[3,3],[4,4]]]}`
		req := httptest.NewRequest(http.MethodPost, "/api/traffic/route-snap", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		code, payload := doJSON(t, router, req)
		require.Equal(t, http.StatusOK, code)
		data := payload["data"].(map[string]interface{})
		segments := data["segments"].([]interface{})
		require.Len(t, segments, 2)
		firstSegment := segments[0].([]interface{})
		firstPoint := firstSegment[0].([]interface{})
		assert.InDelta(t, 1.0, firstPoint[0].(float64), 1e-9)
	})

	t.Run("empty request is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/traffic/route-snap", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")

		code, payload := doJSON(t, router, req)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_input", payload["code"])
	})

	t.Run("short waypoint list is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/traffic/route-snap", strings.NewReader(`{"points":[[1,1]]}`))
		req.Header.Set("Content-Type", "application/json")

		code, payload := doJSON(t, router, req)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_input", payload["code"])
	})
}
