package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/waypoint/internal/application/orchestrator"
	"github.com/aescanero/waypoint/internal/graph"
	"github.com/aescanero/waypoint/internal/phase"
	eventsmemory "github.com/aescanero/waypoint/pkg/adapters/events/memory"
	promcollector "github.com/aescanero/waypoint/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/waypoint/pkg/adapters/storage/memory"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	manager *orchestrator.Manager
	graph   *graph.Graph
	url     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	bus := eventsmemory.NewInMemoryEventBus(logger)
	t.Cleanup(func() { _ = bus.Close() })

	manager := orchestrator.NewManager(
		phase.NewRegistry(logger),
		bus,
		storagememory.NewInMemoryReportStorage(),
		promcollector.NewCollector(prometheus.NewRegistry()),
		orchestrator.NewValidator(),
		logger,
	)

	g := graph.MustNew(3)
	require.NoError(t, g.AddEdge(0, 1, 2))
	require.NoError(t, g.AddEdge(1, 2, 2))

	router := gin.New()
	router.GET("/missions/:id/ws", NewHandler(bus, manager, logger).HandleMissionStream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &fixture{
		manager: manager,
		graph:   g,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/missions/",
	}
}

// readAll reads events until the server closes the stream.
func readAll(t *testing.T, conn *websocket.Conn) ([]domain.Event, error) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var events []domain.Event
	for {
		var event domain.Event
		if err := conn.ReadJSON(&event); err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

func TestStreamRunningMission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.manager.SubmitMission(ctx, f.graph, domain.MissionRequest{Start: 0, End: 2})
	require.NoError(t, err)

	// Holding the actuation channel keeps the mission from finishing before the stream is live
	release, err := f.manager.Channel().Acquire(ctx, domain.PhaseFailure)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.url+id+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.manager.ExecuteMission(ctx, f.graph, domain.MissionRequest{ID: id, Start: 0, End: 2})
	}()

	var first domain.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	release()

	rest, err := readAll(t, conn)
	<-done
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	events := append([]domain.Event{first}, rest...)

	require.NotEmpty(t, events)
	var phaseEvents, stateEvents int
	for _, e := range events {
		assert.Equal(t, id, e.MissionID)
		switch e.Type {
		case domain.EventTypePhaseStarted, domain.EventTypePhaseCompleted:
			phaseEvents++
		case domain.EventTypeMissionState:
			stateEvents++
		}
	}
	// Phase events ride their own topic, so the terminal event may overtake the last of them
	assert.NotZero(t, phaseEvents)
	assert.LessOrEqual(t, phaseEvents, 8)
	assert.Equal(t, 6, stateEvents)

	last := events[len(events)-1]
	assert.Equal(t, domain.EventTypeMissionCompleted, last.Type)
	require.NotNil(t, last.Report)
	assert.Equal(t, []int{0, 1, 2}, last.Report.Path)
}

func TestStreamFinishedMission(t *testing.T) {
	f := newFixture(t)

	report, err := f.manager.ExecuteMission(context.Background(), f.graph,
		domain.MissionRequest{Start: 0, End: 2, InjectFault: domain.PhaseLand})
	require.Error(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.url+report.MissionID+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	events, err := readAll(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeMissionFailed, events[0].Type)
	require.NotNil(t, events[0].Report)
	assert.Equal(t, domain.FailureReasonPhaseFault, events[0].Report.Reason)
}

func TestStreamUnknownMission(t *testing.T) {
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"missing/ws", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
