package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "waypoint:mission:"

// ReportStorage implements ReportStorage using Redis
type ReportStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewReportStorage creates a new Redis report storage. A zero ttl keeps
// reports forever.
func NewReportStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReportStorage {
	return &ReportStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveReport saves a mission report to Redis
func (s *ReportStorage) SaveReport(ctx context.Context, report *domain.MissionReport) error {
	if report == nil || report.MissionID == "" {
		return domain.InvalidArgument("report must have a mission id")
	}

	key := getReportKey(report.MissionID)

	// Serialize report
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	// Save to Redis with TTL
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	s.logger.Debug("report saved",
		zap.String("mission_id", report.MissionID),
		zap.String("status", string(report.Status)))

	return nil
}

// GetReport retrieves a mission report from Redis
func (s *ReportStorage) GetReport(ctx context.Context, missionID string) (*domain.MissionReport, error) {
	key := getReportKey(missionID)

	// Get from Redis
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.NewError(domain.CodeNotFound, "report not found: %s", missionID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	// Deserialize report
	var report domain.MissionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &report, nil
}

// DeleteReport deletes a mission report from Redis
func (s *ReportStorage) DeleteReport(ctx context.Context, missionID string) error {
	key := getReportKey(missionID)

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	s.logger.Debug("report deleted",
		zap.String("mission_id", missionID))

	return nil
}

// ListReports lists all stored reports, oldest submission first
func (s *ReportStorage) ListReports(ctx context.Context) ([]*domain.MissionReport, error) {
	pattern := keyPrefix + "*"

	// Scan for keys
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	// Get all reports; keys that expired between SCAN and GET are skipped
	reports := make([]*domain.MissionReport, 0, len(keys))
	for _, key := range keys {
		report, err := s.GetReport(ctx, strings.TrimPrefix(key, keyPrefix))
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("skipping unreadable report",
					zap.String("key", key),
					zap.Error(err))
			}
			continue
		}
		reports = append(reports, report)
	}

	domain.SortReports(reports)
	return reports, nil
}

// getReportKey returns the Redis key for a mission report
func getReportKey(missionID string) string {
	return keyPrefix + missionID
}
