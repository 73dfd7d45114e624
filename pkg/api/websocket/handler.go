package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ReportReader looks up stored mission reports
type ReportReader interface {
	GetReport(ctx context.Context, missionID string) (*domain.MissionReport, error)
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	reports  ReportReader
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, reports ReportReader, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		reports:  reports,
		logger:   logger,
	}
}

// HandleMissionStream streams the lifecycle and phase events of one mission.
// The connection is closed once the mission reaches a terminal status.
func (h *Handler) HandleMissionStream(c *gin.Context) {
	missionID := c.Param("id")

	if _, err := h.reports.GetReport(c.Request.Context(), missionID); err != nil {
		status, code := http.StatusInternalServerError, "INTERNAL"
		if errors.Is(err, domain.ErrNotFound) {
			status, code = http.StatusNotFound, "NOT_FOUND"
		}
		c.JSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
		return
	}

	eventChan := make(chan domain.Event, 64)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before the upgrade so no event is lost once the client is connected
	if err := h.subscribeToEvents(ctx, missionID, eventChan); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": err.Error()}})
		return
	}

	// Upgrade connection
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("mission_id", missionID),
		zap.String("client", c.ClientIP()))

	go h.readUntilClosed(conn, cancel)

	// The mission may have finished before the subscription was in place
	if report, err := h.reports.GetReport(ctx, missionID); err == nil && report.Status.IsTerminal() {
		_ = h.send(conn, terminalEvent(report))
		h.closeWith(conn, websocket.CloseNormalClosure, string(report.Status))
		return
	}

	// Send events to client
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			if err := h.send(conn, event); err != nil {
				return
			}
			if event.Type == domain.EventTypeMissionCompleted || event.Type == domain.EventTypeMissionFailed {
				h.closeWith(conn, websocket.CloseNormalClosure, string(event.Type))
				return
			}
		}
	}
}

// subscribeToEvents forwards events of one mission to ch until ctx is done
func (h *Handler) subscribeToEvents(ctx context.Context, missionID string, ch chan<- domain.Event) error {
	eventHandler := func(ctx context.Context, event domain.Event) error {
		if event.MissionID != missionID {
			return nil
		}

		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}

	for _, topic := range []string{domain.TopicMissionEvents, domain.TopicPhaseEvents} {
		if err := h.eventBus.Subscribe(ctx, topic, eventHandler); err != nil {
			h.logger.Error("failed to subscribe to events",
				zap.String("topic", topic),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// readUntilClosed drains client frames so close and ping control messages are
// processed, and cancels the stream when the client goes away.
func (h *Handler) readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return nil
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Error("failed to write message", zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func terminalEvent(report *domain.MissionReport) domain.Event {
	eventType := domain.EventTypeMissionCompleted
	if report.Status == domain.MissionStatusFailed {
		eventType = domain.EventTypeMissionFailed
	}

	ts := report.SubmittedAt
	if report.CompletedAt != nil {
		ts = *report.CompletedAt
	}

	return domain.Event{
		Type:      eventType,
		MissionID: report.MissionID,
		Timestamp: ts,
		Report:    report,
	}
}
