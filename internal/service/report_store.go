package service

import (
	"context"
	"errors"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	reportKeyPrefix = "issuelog:run:"
	latestReportKey = reportKeyPrefix + "latest"
	reportTTL       = 30 * 24 * time.Hour
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrReportNotFound is returned when no run report is stored.
var ErrReportNotFound = errors.New("run report not found")

// ReportStore keeps run reports for the HTTP surface.
type ReportStore interface {
	Save(ctx context.Context, report *RunReport) error
	Latest(ctx context.Context) (*RunReport, error)
	Get(ctx context.Context, id string) (*RunReport, error)
}

type memoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]*RunReport
	latest  string
}

// NewMemoryReportStore keeps reports for the lifetime of the process.
func NewMemoryReportStore() ReportStore {
	return &memoryReportStore{reports: make(map[string]*RunReport)}
}

func (m *memoryReportStore) Save(_ context.Context, report *RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = report
	m.latest = report.ID
	return nil
}

func (m *memoryReportStore) Latest(ctx context.Context) (*RunReport, error) {
	m.mu.RLock()
	id := m.latest
	m.mu.RUnlock()
	if id == "" {
		return nil, ErrReportNotFound
	}
	return m.Get(ctx, id)
}

func (m *memoryReportStore) Get(_ context.Context, id string) (*RunReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	report, ok := m.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return report, nil
}

// KeyValue is the part of the redis client the report store needs.
type KeyValue interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisReportStore struct {
	client KeyValue
	local  ReportStore
	logger *zap.Logger
}

// NewReportStore stores reports as JSON in redis and mirrors them in memory, so reads still
// answer while redis is unreachable. A nil client yields the memory store alone.
func NewReportStore(client KeyValue, logger *zap.Logger) ReportStore {
	if client == nil {
		return NewMemoryReportStore()
	}
	return &redisReportStore{client: client, local: NewMemoryReportStore(), logger: logger}
}

func (r *redisReportStore) Save(ctx context.Context, report *RunReport) error {
	_ = r.local.Save(ctx, report)

	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, reportKeyPrefix+report.ID, payload, reportTTL).Err(); err != nil {
		r.logger.Warn("storing run report in redis failed", zap.String("run_id", report.ID), zap.Error(err))
		return nil
	}
	if err := r.client.Set(ctx, latestReportKey, report.ID, reportTTL).Err(); err != nil {
		r.logger.Warn("storing latest run id in redis failed", zap.String("run_id", report.ID), zap.Error(err))
	}
	return nil
}

func (r *redisReportStore) Latest(ctx context.Context) (*RunReport, error) {
	id, err := r.client.Get(ctx, latestReportKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("reading latest run id from redis failed", zap.Error(err))
		}
		return r.local.Latest(ctx)
	}
	return r.Get(ctx, id)
}

func (r *redisReportStore) Get(ctx context.Context, id string) (*RunReport, error) {
	payload, err := r.client.Get(ctx, reportKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("reading run report from redis failed", zap.String("run_id", id), zap.Error(err))
		}
		return r.local.Get(ctx, id)
	}

	var report RunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
