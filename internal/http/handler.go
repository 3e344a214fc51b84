package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"traffic-service/internal/http/middleware"
	"traffic-service/internal/model"
	"traffic-service/internal/service"
)

type Handler struct {
	detectorService   *service.DetectorService
	ingestService     *service.IngestService
	pathService       *service.PathService
	comovementService *service.ComovementService
	clusterService    *service.ClusterService
	routeSnapService  *service.RouteSnapService
	log               zerolog.Logger
}

func NewHandler(
	detectorService *service.DetectorService,
	ingestService *service.IngestService,
	pathService *service.PathService,
	comovementService *service.ComovementService,
	clusterService *service.ClusterService,
	routeSnapService *service.RouteSnapService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		detectorService:   detectorService,
		ingestService:     ingestService,
		pathService:       pathService,
		comovementService: comovementService,
		clusterService:    clusterService,
		routeSnapService:  routeSnapService,
		log:               log,
	}
}

func (h *Handler) Register(r *gin.Engine, uploadGuard gin.HandlerFunc) {
	r.GET("/api/detectors", h.listDetectors)
	r.GET("/api/detectors/:external_id", h.getDetector)

	traffic := r.Group("/api/traffic")
	{
		traffic.GET("/vehicle-path", h.vehiclePath)
		traffic.GET("/comovement", h.comovement)
		traffic.GET("/cluster-routes", h.clusterRoutes)
		traffic.POST("/route-snap", h.routeSnap)
	}

	upload := traffic.Group("/ingest")
	if uploadGuard != nil {
		upload.Use(uploadGuard)
	}
	{
		upload.POST("/detectors", h.ingestDetectors)
		upload.POST("/vehicle-passes", h.ingestVehiclePasses)
	}
}

func (h *Handler) listDetectors(c *gin.Context) {
	detectors, err := h.detectorService.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(detectors))
}

func (h *Handler) getDetector(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_input", "external id is required"))
		return
	}

	detector, err := h.detectorService.GetByExternalID(c.Request.Context(), externalID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(detector))
}

func (h *Handler) ingestDetectors(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("missing_file", "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_file", "cannot read uploaded file"))
		return
	}
	defer file.Close()

	h.logUpload(c, fileHeader.Filename)

	summary, err := h.ingestService.IngestDetectors(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(summary))
}

func (h *Handler) ingestVehiclePasses(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("missing_file", "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_file", "cannot read uploaded file"))
		return
	}
	defer file.Close()

	h.logUpload(c, fileHeader.Filename)

	summary, err := h.ingestService.IngestVehiclePasses(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(summary))
}

func (h *Handler) vehiclePath(c *gin.Context) {
	vehicleID := strings.TrimSpace(c.Query("vehicle_id"))
	if vehicleID == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_input", "vehicle_id is required"))
		return
	}

	start, end, ok := h.optionalWindow(c)
	if !ok {
		return
	}

	path, err := h.pathService.Path(c.Request.Context(), vehicleID, start, end)
	if err != nil {
		h.handleError(c, err)
		return
	}

	// The full visited sequence keeps revisits; the detector records are
	// deduplicated to first-visit order and carry the stored positions so
	// the path can be drawn without extra lookups.
	sequence := make([]uuid.UUID, 0, len(path))
	ids := make([]uuid.UUID, 0, len(path))
	seen := make(map[uuid.UUID]struct{}, len(path))
	for _, point := range path {
		sequence = append(sequence, point.DetectorID)
		if _, ok := seen[point.DetectorID]; ok {
			continue
		}
		seen[point.DetectorID] = struct{}{}
		ids = append(ids, point.DetectorID)
	}

	found, err := h.detectorService.GetByIDs(c.Request.Context(), ids)
	if err != nil {
		h.handleError(c, err)
		return
	}
	byID := make(map[uuid.UUID]model.Detector, len(found))
	for _, detector := range found {
		byID[detector.ID] = detector
	}
	detectors := make([]model.Detector, 0, len(ids))
	for _, id := range ids {
		if detector, ok := byID[id]; ok {
			detectors = append(detectors, detector)
		}
	}

	c.JSON(http.StatusOK, successResponse(gin.H{
		"vehicle_id":        vehicleID,
		"detector_sequence": sequence,
		"detectors":         detectors,
		"points":            path,
	}))
}

func (h *Handler) comovement(c *gin.Context) {
	vehicleID := strings.TrimSpace(c.Query("vehicle_id"))
	if vehicleID == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_input", "vehicle_id is required"))
		return
	}

	k, ok := queryInt(c, "k", service.DefaultComovementK)
	if !ok {
		return
	}
	dtSeconds, ok := queryInt(c, "dt", int(service.DefaultComovementDt/time.Second))
	if !ok {
		return
	}
	maxLead, ok := queryInt(c, "max_lead", service.DefaultComovementMaxLead)
	if !ok {
		return
	}

	start, end, windowOK := h.optionalWindow(c)
	if !windowOK {
		return
	}

	matches, err := h.comovementService.FindCompanions(c.Request.Context(), vehicleID, service.ComovementParams{
		K:       k,
		Dt:      time.Duration(dtSeconds) * time.Second,
		MaxLead: maxLead,
		Start:   start,
		End:     end,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{
		"vehicle_id": vehicleID,
		"matches":    matches,
	}))
}

func (h *Handler) clusterRoutes(c *gin.Context) {
	startRaw := strings.TrimSpace(c.Query("start"))
	endRaw := strings.TrimSpace(c.Query("end"))
	if startRaw == "" || endRaw == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_range", "start and end are required"))
		return
	}

	start, err := parseTime(startRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_range", "invalid start time"))
		return
	}
	end, err := parseTime(endRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_range", "invalid end time"))
		return
	}

	top, ok := queryInt(c, "top", service.DefaultClusterTop)
	if !ok {
		return
	}
	minLen, ok := queryInt(c, "min_len", service.DefaultClusterMinLen)
	if !ok {
		return
	}

	clusters, err := h.clusterService.ClusterRoutes(c.Request.Context(), service.ClusterParams{
		Start:  start,
		End:    end,
		Top:    top,
		MinLen: minLen,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{
		"start":    start,
		"end":      end,
		"clusters": clusters,
	}))
}

func (h *Handler) routeSnap(c *gin.Context) {
	var req struct {
		Points   [][]float64   `json:"points"`
		Segments [][][]float64 `json:"segments"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_input", err.Error()))
		return
	}

	switch {
	case len(req.Points) > 0:
		waypoints, err := toGeoPoints(req.Points)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_input", err.Error()))
			return
		}
		polyline, err := h.routeSnapService.SnapPath(c.Request.Context(), waypoints)
		if err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, successResponse(gin.H{"points": fromGeoPoints(polyline)}))

	case len(req.Segments) > 0:
		segments := make([][]model.GeoPoint, 0, len(req.Segments))
		for _, rawSegment := range req.Segments {
			waypoints, err := toGeoPoints(rawSegment)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorResponse("invalid_input", err.Error()))
				return
			}
			segments = append(segments, waypoints)
		}
		polylines, err := h.routeSnapService.SnapSegments(c.Request.Context(), segments)
		if err != nil {
			h.handleError(c, err)
			return
		}
		out := make([][][]float64, 0, len(polylines))
		for _, polyline := range polylines {
			out = append(out, fromGeoPoints(polyline))
		}
		c.JSON(http.StatusOK, successResponse(gin.H{"segments": out}))

	default:
		c.JSON(http.StatusBadRequest, errorResponse("invalid_input", "points or segments are required"))
	}
}

// logUpload records who sent a file when the upload guard is active.
func (h *Handler) logUpload(c *gin.Context, filename string) {
	event := h.log.Info().Str("file", filename)
	if claims, ok := middleware.TokenClaims(c); ok {
		event = event.Str("user_id", claims.UserID)
	}
	event.Msg("file upload received")
}

// optionalWindow parses the optional start/end query parameters, rejecting
// the request itself on an unparsable value.
func (h *Handler) optionalWindow(c *gin.Context) (*time.Time, *time.Time, bool) {
	var start, end *time.Time

	if raw := strings.TrimSpace(c.Query("start")); raw != "" {
		parsed, err := parseTime(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_range", "invalid start time"))
			return nil, nil, false
		}
		start = &parsed
	}

	if raw := strings.TrimSpace(c.Query("end")); raw != "" {
		parsed, err := parseTime(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_range", "invalid end time"))
			return nil, nil, false
		}
		end = &parsed
	}

	return start, end, true
}

func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_input", "invalid "+name))
		return 0, false
	}
	return value, true
}

// toGeoPoints converts [lat, lon] pairs.
func toGeoPoints(pairs [][]float64) ([]model.GeoPoint, error) {
	points := make([]model.GeoPoint, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, errors.New("each point must be a [lat, lon] pair")
		}
		points = append(points, model.GeoPoint{Latitude: pair[0], Longitude: pair[1]})
	}
	return points, nil
}

func fromGeoPoints(points []model.GeoPoint) [][]float64 {
	pairs := make([][]float64, 0, len(points))
	for _, point := range points {
		pairs = append(pairs, []float64{point.Latitude, point.Longitude})
	}
	return pairs
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, service.ErrUnsupportedFile):
		c.JSON(http.StatusBadRequest, errorResponse("unsupported_file_type", err.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse("invalid_input", err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(code, message string) gin.H {
	return gin.H{
		"code":  code,
		"error": message,
	}
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("invalid time format")
}
