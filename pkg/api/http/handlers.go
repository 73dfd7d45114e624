package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aescanero/waypoint/internal/application/orchestrator"
	"github.com/aescanero/waypoint/internal/graph"
	"github.com/aescanero/waypoint/internal/planner"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// MissionSubmitRequest represents a mission submission request
type MissionSubmitRequest struct {
	Start       *int             `json:"start" binding:"required"`
	End         *int             `json:"end" binding:"required"`
	InjectFault domain.PhaseKind `json:"inject_fault,omitempty"`
}

// MissionSubmitResponse represents a mission submission response
type MissionSubmitResponse struct {
	MissionID   string `json:"mission_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// Coordinate is a longitude/latitude pair
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// RouteRequest asks for a shortest route. Each endpoint is given either as a
// node id or as a coordinate snapped to the nearest waypoint.
type RouteRequest struct {
	Start *int        `json:"start,omitempty"`
	End   *int        `json:"end,omitempty"`
	From  *Coordinate `json:"from,omitempty"`
	To    *Coordinate `json:"to,omitempty"`
}

// RouteResponse represents a planned route
type RouteResponse struct {
	Start          int     `json:"start"`
	End            int     `json:"end"`
	Path           []int   `json:"path"`
	Cost           int64   `json:"cost"`
	DistanceMeters float64 `json:"distance_m,omitempty"`
}

// RoadmapResponse describes the loaded roadmap
type RoadmapResponse struct {
	Nodes     int                    `json:"nodes"`
	Edges     []graph.UndirectedEdge `json:"edges"`
	Waypoints []WaypointResponse     `json:"waypoints,omitempty"`
}

// WaypointResponse is a node with coordinates
type WaypointResponse struct {
	ID  int     `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	checks := gin.H{
		"orchestrator": "ok",
	}

	if s.pool != nil {
		workers := s.pool.Health().GetStatus()
		checks["workers"] = workers
		if !workers.Healthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleGetRoadmap returns the graph the planner works on
func (s *Server) handleGetRoadmap(c *gin.Context) {
	resp := RoadmapResponse{
		Nodes: s.roadmap.Graph.NumNodes(),
		Edges: s.roadmap.Graph.Edges(),
	}
	for id := 0; id < resp.Nodes; id++ {
		if p, ok := s.roadmap.Waypoints[id]; ok {
			resp.Waypoints = append(resp.Waypoints, WaypointResponse{ID: id, Lon: p.Lon(), Lat: p.Lat()})
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handlePlanRoute computes a shortest route without flying it
func (s *Server) handlePlanRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	start, err := s.resolveEndpoint("start", req.Start, req.From)
	if err != nil {
		s.writeError(c, err)
		return
	}
	end, err := s.resolveEndpoint("end", req.End, req.To)
	if err != nil {
		s.writeError(c, err)
		return
	}

	path, err := planner.ShortestPath(s.roadmap.Graph, start, end)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, RouteResponse{
		Start:          start,
		End:            end,
		Path:           path.Nodes,
		Cost:           path.Cost,
		DistanceMeters: s.roadmap.PathDistanceMeters(path.Nodes),
	})
}

// handleSubmitMission queues a mission for the worker pool
func (s *Server) handleSubmitMission(c *gin.Context) {
	var req MissionSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	missionID, err := s.orchestrator.SubmitMission(c.Request.Context(), s.roadmap.Graph, req.mission())
	if err != nil {
		s.logger.Error("failed to submit mission", zap.Error(err))
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, MissionSubmitResponse{
		MissionID:   missionID,
		Status:      string(domain.MissionStatusPending),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleExecuteMission runs a mission and responds with its report
func (s *Server) handleExecuteMission(c *gin.Context) {
	var req MissionSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	report, err := s.orchestrator.ExecuteMission(c.Request.Context(), s.roadmap.Graph, req.mission())
	switch domain.CodeOf(err) {
	case domain.CodeInvalidArgument, domain.CodeUnreachable:
		c.JSON(statusFor(err), ErrorResponse{
			Error: ErrorDetail{
				Code:    errorCode(err),
				Message: err.Error(),
				Details: report,
			},
		})
		return
	}

	// Faulted and timed out missions still ran; the report carries the outcome.
	c.JSON(http.StatusOK, report)
}

// handleListMissions lists stored mission reports
func (s *Server) handleListMissions(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit <= 0 || limit > maxListLimit {
		s.badRequest(c, errors.New("limit must be between 1 and 100"))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		s.badRequest(c, errors.New("offset must not be negative"))
		return
	}

	reports, err := s.orchestrator.ListReports(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list missions", zap.Error(err))
		s.writeError(c, err)
		return
	}

	if status := c.Query("status"); status != "" {
		filtered := reports[:0]
		for _, r := range reports {
			if string(r.Status) == status {
				filtered = append(filtered, r)
			}
		}
		reports = filtered
	}

	total := len(reports)
	page := []*domain.MissionReport{}
	if offset < total {
		page = reports[offset:min(offset+limit, total)]
	}

	c.JSON(http.StatusOK, gin.H{
		"missions": page,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleGetMission returns one mission report
func (s *Server) handleGetMission(c *gin.Context) {
	report, err := s.orchestrator.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (r MissionSubmitRequest) mission() domain.MissionRequest {
	return domain.MissionRequest{
		Start:       *r.Start,
		End:         *r.End,
		InjectFault: r.InjectFault,
	}
}

func (s *Server) resolveEndpoint(name string, id *int, coord *Coordinate) (int, error) {
	switch {
	case id != nil && coord != nil:
		return -1, domain.InvalidArgument("%s is given both as node and coordinate", name)
	case id != nil:
		return *id, nil
	case coord != nil:
		return s.roadmap.Nearest(coord.Lon, coord.Lat)
	default:
		return -1, domain.InvalidArgument("%s is required", name)
	}
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Warn("invalid request", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

func (s *Server) writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), ErrorResponse{
		Error: ErrorDetail{
			Code:    errorCode(err),
			Message: err.Error(),
		},
	})
}

func statusFor(err error) int {
	if errors.Is(err, orchestrator.ErrShuttingDown) {
		return http.StatusServiceUnavailable
	}
	switch domain.CodeOf(err) {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUnreachable:
		return http.StatusUnprocessableEntity
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	if errors.Is(err, orchestrator.ErrShuttingDown) {
		return "SHUTTING_DOWN"
	}
	if code := domain.CodeOf(err); code != "" {
		return strings.ToUpper(string(code))
	}
	return "INTERNAL"
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
