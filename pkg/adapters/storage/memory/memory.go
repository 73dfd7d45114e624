package memory

import (
	"context"
	"sync"

	"github.com/aescanero/waypoint/pkg/domain"
)

// InMemoryReportStorage implements ReportStorage using an in-memory map.
// Reports are copied on the way in and out.
type InMemoryReportStorage struct {
	reports map[string]*domain.MissionReport
	mu      sync.RWMutex
}

// NewInMemoryReportStorage creates a new in-memory report storage
func NewInMemoryReportStorage() *InMemoryReportStorage {
	return &InMemoryReportStorage{
		reports: make(map[string]*domain.MissionReport),
	}
}

// SaveReport saves a mission report, replacing any earlier version
func (s *InMemoryReportStorage) SaveReport(ctx context.Context, report *domain.MissionReport) error {
	if report == nil || report.MissionID == "" {
		return domain.InvalidArgument("report must have a mission id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Deep copy to avoid mutations
	s.reports[report.MissionID] = report.Clone()
	return nil
}

// GetReport retrieves a mission report
func (s *InMemoryReportStorage) GetReport(ctx context.Context, missionID string) (*domain.MissionReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[missionID]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "report not found: %s", missionID)
	}
	return report.Clone(), nil
}

// DeleteReport removes a mission report
func (s *InMemoryReportStorage) DeleteReport(ctx context.Context, missionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reports, missionID)
	return nil
}

// ListReports returns all reports, oldest submission first
func (s *InMemoryReportStorage) ListReports(ctx context.Context) ([]*domain.MissionReport, error) {
	s.mu.RLock()
	reports := make([]*domain.MissionReport, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, r.Clone())
	}
	s.mu.RUnlock()

	domain.SortReports(reports)
	return reports, nil
}
