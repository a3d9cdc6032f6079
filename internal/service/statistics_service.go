package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/events"
	"github.com/helpline/escalation-service/internal/repository"
	"github.com/helpline/escalation-service/internal/stats"
)

const statisticsCacheKey = "help-requests:statistics"

// StatisticsService serves the aggregate snapshot, optionally cached in Redis.
type StatisticsService struct {
	repo   repository.HelpRequestRepository
	cache  redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatisticsService creates the service. A nil cache or non-positive ttl disables caching.
func NewStatisticsService(repo repository.HelpRequestRepository, cache redis.Cmdable, ttl time.Duration, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func (s *StatisticsService) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

// GetStatistics returns the current snapshot. Cache failures fall through to the store.
func (s *StatisticsService) GetStatistics(ctx context.Context) (domain.Statistics, error) {
	if s.cacheEnabled() {
		raw, err := s.cache.Get(ctx, statisticsCacheKey).Bytes()
		switch {
		case err == nil:
			var cached domain.Statistics
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
		case !errors.Is(err, redis.Nil):
			s.logger.Warn("statistics cache read failed", zap.Error(err))
		}
	}

	counts, err := s.repo.Statistics(ctx)
	if err != nil {
		return domain.Statistics{}, err
	}
	snapshot := stats.Summarize(counts)

	if s.cacheEnabled() {
		raw, err := json.Marshal(snapshot)
		if err == nil {
			err = s.cache.Set(ctx, statisticsCacheKey, raw, s.ttl).Err()
		}
		if err != nil {
			s.logger.Warn("statistics cache write failed", zap.Error(err))
		}
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot.
func (s *StatisticsService) Invalidate(ctx context.Context) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Del(ctx, statisticsCacheKey).Err(); err != nil {
		s.logger.Warn("statistics cache invalidation failed", zap.Error(err))
	}
}

// RegisterHandlers drops the cached snapshot on every lifecycle event, so
// periodic sweeps and console updates are visible before the TTL runs out.
func (s *StatisticsService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil || !s.cacheEnabled() {
		return
	}
	dispatcher.SubscribeAll(func(ctx context.Context, _ events.Event) error {
		s.Invalidate(ctx)
		return nil
	})
}
