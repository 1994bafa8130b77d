package db

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

// ItemStore is the item persistence contract shared by the plain and cached repositories.
type ItemStore interface {
	GetAll(ctx context.Context) ([]models.Item, error)
	GetByID(ctx context.Context, id int) (*models.Item, error)
	Create(ctx context.Context, req models.CreateItemRequest) (*models.Item, error)
	Update(ctx context.Context, id int, req models.UpdateItemRequest) (*models.Item, error)
	Delete(ctx context.Context, id int) error
	DeductStock(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error)
	AddStock(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error)
	ReleaseStock(ctx context.Context, id, quantity int, deductKey string) (*models.StockResponse, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedItemRepository serves item reads from the cache and invalidates on
// every write. Cache failures degrade to the database, never to an error.
type CachedItemRepository struct {
	repo    ItemStore
	cache   Cache
	metrics *metrics.Metrics
}

func NewCachedItemRepository(repo ItemStore, c Cache, m *metrics.Metrics) *CachedItemRepository {
	return &CachedItemRepository{repo: repo, cache: c, metrics: m}
}

func itemKey(id int) string {
	return fmt.Sprintf("item:%d", id)
}

const allItemsKey = "items:all"

func (r *CachedItemRepository) GetAll(ctx context.Context) ([]models.Item, error) {
	logger := logging.FromContext(ctx)

	var items []models.Item
	err := r.cache.Get(ctx, allItemsKey, &items)
	if err == nil {
		r.metrics.ObserveCache(true)
		return items, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.Warn("cache read failed", zap.String("key", allItemsKey), zap.Error(err))
	}
	r.metrics.ObserveCache(false)

	items, err = r.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, allItemsKey, items); err != nil {
		logger.Warn("cache write failed", zap.String("key", allItemsKey), zap.Error(err))
	}
	return items, nil
}

func (r *CachedItemRepository) GetByID(ctx context.Context, id int) (*models.Item, error) {
	logger := logging.FromContext(ctx)
	key := itemKey(id)

	var item models.Item
	err := r.cache.Get(ctx, key, &item)
	if err == nil {
		r.metrics.ObserveCache(true)
		return &item, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	r.metrics.ObserveCache(false)

	it, err := r.repo.GetByID(ctx, id)
	if err != nil || it == nil {
		return it, err
	}

	if err := r.cache.Set(ctx, key, it); err != nil {
		logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return it, nil
}

// GetByIDFresh reads the item from the database, skipping the cache. A cached
// copy that disagrees with the row is dropped; the result is never cached, so
// a concurrent write cannot be overwritten with this read.
func (r *CachedItemRepository) GetByIDFresh(ctx context.Context, id int) (*models.Item, error) {
	it, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := itemKey(id)
	var cached models.Item
	if err := r.cache.Get(ctx, key, &cached); err == nil && (it == nil || !sameItem(&cached, it)) {
		if err := r.cache.Delete(ctx, key); err != nil {
			logging.FromContext(ctx).Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
	return it, nil
}

func sameItem(a, b *models.Item) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Stock == b.Stock &&
		a.Price.Equal(b.Price) && a.UpdatedAt.Equal(b.UpdatedAt)
}

func (r *CachedItemRepository) invalidate(ctx context.Context, id int) {
	keys := []string{allItemsKey}
	if id > 0 {
		keys = append(keys, itemKey(id))
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		logging.FromContext(ctx).Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (r *CachedItemRepository) Create(ctx context.Context, req models.CreateItemRequest) (*models.Item, error) {
	it, err := r.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, 0)
	return it, nil
}

func (r *CachedItemRepository) Update(ctx context.Context, id int, req models.UpdateItemRequest) (*models.Item, error) {
	it, err := r.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return it, nil
}

func (r *CachedItemRepository) Delete(ctx context.Context, id int) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedItemRepository) DeductStock(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error) {
	resp, err := r.repo.DeductStock(ctx, id, quantity, key)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return resp, nil
}

func (r *CachedItemRepository) AddStock(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error) {
	resp, err := r.repo.AddStock(ctx, id, quantity, key)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return resp, nil
}

func (r *CachedItemRepository) ReleaseStock(ctx context.Context, id, quantity int, deductKey string) (*models.StockResponse, error) {
	resp, err := r.repo.ReleaseStock(ctx, id, quantity, deductKey)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return resp, nil
}
