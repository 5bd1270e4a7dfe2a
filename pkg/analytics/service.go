// pkg/analytics/service.go
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/model"
	"github.com/David-Botos/retail-ingress/pkg/store"
)

// Service runs the read-only aggregation queries against the live snapshot
type Service struct {
	db     *sqlx.DB
	cfg    config.AnalyticsConfig
	logger *zap.Logger

	cache *queryCache
	group singleflight.Group

	mu         sync.RWMutex
	generation string
}

// NewService creates a query service over db
func NewService(db *sqlx.DB, cfg config.AnalyticsConfig, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		logger: logger,
		cache:  newQueryCache(cfg.CacheSize),
	}
}

// Generation returns the snapshot generation cached results belong to
func (s *Service) Generation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Invalidate switches the service to a new snapshot generation and drops
// every result cached for an older one
func (s *Service) Invalidate(generation string) {
	s.mu.Lock()
	previous := s.generation
	s.generation = generation
	s.mu.Unlock()

	dropped := s.cache.purge(generation)
	s.logger.Info("Query cache invalidated",
		zap.String("previous_generation", previous),
		zap.String("generation", generation),
		zap.Int("dropped_entries", dropped))
}

// Refresh reads the live generation from the store and invalidates the cache
// when it changed. It returns the generation, "" when no snapshot exists.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	info, err := store.ReadSnapshotInfo(ctx, s.db)
	if err != nil {
		return "", s.queryError("snapshot_meta", err)
	}

	generation := ""
	if info != nil {
		generation = info.Generation
	}
	if generation != s.Generation() {
		s.Invalidate(generation)
	}
	return generation, nil
}

// CacheStats returns the query cache counters
func (s *Service) CacheStats() CacheStats {
	return s.cache.stats()
}

// Config returns the analytics defaults the service was created with
func (s *Service) Config() config.AnalyticsConfig {
	return s.cfg
}

// queryError classifies a failed query. Connection failures and a missing
// snapshot become StoreUnavailableError; everything else is wrapped as is.
func (s *Service) queryError(name string, err error) error {
	if errors.Is(err, model.ErrNoSelection) {
		return err
	}
	var unavailable *model.StoreUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	if store.IsUnavailable(err) {
		s.logger.Warn("Store unavailable",
			zap.String("query", name),
			zap.Error(err))
		return &model.StoreUnavailableError{Query: name, Err: err}
	}
	return fmt.Errorf("query %s failed: %w", name, err)
}

type generationKey struct{}

// pinGeneration makes queries run with ctx use generation instead of
// re-reading snapshot_meta
func pinGeneration(ctx context.Context, generation string) context.Context {
	return context.WithValue(ctx, generationKey{}, generation)
}

// currentGeneration returns the snapshot generation a query runs against.
// Unless a report pinned it, the live generation is read from the store so a
// snapshot committed by another process drops the older results.
func (s *Service) currentGeneration(ctx context.Context) (string, error) {
	if generation, ok := ctx.Value(generationKey{}).(string); ok {
		return generation, nil
	}
	return s.Refresh(ctx)
}

// cachedQuery returns the cached result of name/params for the live
// generation, running fn once on a miss even when called concurrently.
// Cached values are shared and must not be modified by callers.
func cachedQuery[T any](
	ctx context.Context,
	s *Service,
	name, params string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	generation, err := s.currentGeneration(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	key := cacheKey(name, params, generation)

	if v, ok := s.cache.get(key); ok {
		s.logger.Debug("Query cache hit", zap.String("query", name), zap.String("params", params))
		return v.(T), nil
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		res, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.set(key, generation, res)
		return res, nil
	})
	if err != nil {
		var zero T
		return zero, s.queryError(name, err)
	}

	s.logger.Debug("Query executed",
		zap.String("query", name),
		zap.String("params", params),
		zap.Bool("shared", shared))

	return v.(T), nil
}
