package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.ReportStorage = (*InMemoryReportStorage)(nil)

func TestSaveAndGetCopies(t *testing.T) {
	s := NewInMemoryReportStorage()
	ctx := context.Background()

	report := &domain.MissionReport{
		MissionID: "m1",
		Path:      []int{0, 1, 2},
		Status:    domain.MissionStatusSuccess,
	}
	require.NoError(t, s.SaveReport(ctx, report))

	report.Path[0] = 99
	got, err := s.GetReport(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got.Path)

	got.Path[1] = 42
	again, err := s.GetReport(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, again.Path)
}

func TestGetUnknownIsNotFound(t *testing.T) {
	s := NewInMemoryReportStorage()
	_, err := s.GetReport(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSaveRejectsAnonymousReport(t *testing.T) {
	s := NewInMemoryReportStorage()
	err := s.SaveReport(context.Background(), &domain.MissionReport{})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestListAndDelete(t *testing.T) {
	s := NewInMemoryReportStorage()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.SaveReport(ctx, &domain.MissionReport{MissionID: "b", SubmittedAt: base.Add(time.Second)}))
	require.NoError(t, s.SaveReport(ctx, &domain.MissionReport{MissionID: "a", SubmittedAt: base}))
	require.NoError(t, s.SaveReport(ctx, &domain.MissionReport{MissionID: "c", SubmittedAt: base.Add(2 * time.Second)}))

	reports, err := s.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "a", reports[0].MissionID)
	assert.Equal(t, "b", reports[1].MissionID)
	assert.Equal(t, "c", reports[2].MissionID)

	require.NoError(t, s.DeleteReport(ctx, "b"))
	reports, err = s.ListReports(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}
