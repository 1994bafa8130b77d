package db

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// rowStore keeps items in memory. onGet runs after a row is read and before
// it is returned.
type rowStore struct {
	items map[int]models.Item
	onGet func()
}

func (s *rowStore) GetAll(context.Context) ([]models.Item, error) {
	out := []models.Item{}
	for _, it := range s.items {
		out = append(out, it)
	}
	return out, nil
}

func (s *rowStore) GetByID(_ context.Context, id int) (*models.Item, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	if hook := s.onGet; hook != nil {
		s.onGet = nil
		hook()
	}
	return &it, nil
}

func (s *rowStore) Create(_ context.Context, req models.CreateItemRequest) (*models.Item, error) {
	it := models.Item{ID: len(s.items) + 1, Name: req.Name, Price: req.Price, Stock: req.Stock}
	s.items[it.ID] = it
	return &it, nil
}

func (s *rowStore) Update(_ context.Context, id int, req models.UpdateItemRequest) (*models.Item, error) {
	it := s.items[id]
	if req.Price != nil {
		it.Price = *req.Price
	}
	s.items[id] = it
	return &it, nil
}

func (s *rowStore) Delete(_ context.Context, id int) error {
	delete(s.items, id)
	return nil
}

func (s *rowStore) DeductStock(_ context.Context, id, quantity int, _ string) (*models.StockResponse, error) {
	it := s.items[id]
	it.Stock -= quantity
	s.items[id] = it
	return &models.StockResponse{ItemID: id, Stock: it.Stock, Applied: true}, nil
}

func (s *rowStore) AddStock(_ context.Context, id, quantity int, _ string) (*models.StockResponse, error) {
	it := s.items[id]
	it.Stock += quantity
	s.items[id] = it
	return &models.StockResponse{ItemID: id, Stock: it.Stock, Applied: true}, nil
}

func (s *rowStore) ReleaseStock(_ context.Context, id, quantity int, _ string) (*models.StockResponse, error) {
	return s.AddStock(context.Background(), id, quantity, "")
}

func newCachedRepo() (*CachedItemRepository, *rowStore, *mapCache) {
	store := &rowStore{items: map[int]models.Item{
		1: {ID: 1, Name: "Laptop", Price: decimal.RequireFromString("10"), Stock: 5},
	}}
	c := newMapCache()
	return NewCachedItemRepository(store, c, nil), store, c
}

func TestCachedGetByIDServesFromCache(t *testing.T) {
	repo, store, _ := newCachedRepo()
	ctx := context.Background()

	it, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, it)

	delete(store.items, 1)
	it, err = repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, "Laptop", it.Name)
}

func TestCachedWritesInvalidate(t *testing.T) {
	repo, _, _ := newCachedRepo()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	_, err = repo.DeductStock(ctx, 1, 2, "k1:1:stock")
	require.NoError(t, err)

	it, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, it.Stock)
}

func TestFreshReadSeesUpdateRacingCacheFill(t *testing.T) {
	repo, store, c := newCachedRepo()
	ctx := context.Background()
	price := decimal.RequireFromString("500")

	// The price changes between the miss's row read and its cache fill, so
	// the fill stores the old row after the update invalidated the key.
	store.onGet = func() {
		_, err := repo.Update(ctx, 1, models.UpdateItemRequest{Price: &price})
		require.NoError(t, err)
	}
	stale, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "10", stale.Price.String())

	fresh, err := repo.GetByIDFresh(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500", fresh.Price.String())

	// The disagreeing entry is dropped and the fresh row is not cached.
	var cached models.Item
	assert.ErrorIs(t, c.Get(ctx, itemKey(1), &cached), cache.ErrMiss)

	it, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500", it.Price.String())
}

func TestFreshReadMissingItem(t *testing.T) {
	repo, _, _ := newCachedRepo()

	it, err := repo.GetByIDFresh(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, it)
}

func TestWalletAmountsMustBeWholeCents(t *testing.T) {
	repo := &CustomerRepository{}
	ctx := context.Background()
	amount := decimal.RequireFromString("10.005")

	_, err := repo.Deduct(ctx, "alice", amount, "k1:1:debit")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Refund(ctx, "alice", amount, "k1:1:debit")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Create(ctx, models.CreateCustomerRequest{Username: "bob", WalletBalance: amount})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestItemPriceMustBeWholeCents(t *testing.T) {
	repo := &ItemRepository{}
	ctx := context.Background()
	price := decimal.RequireFromString("1.005")

	_, err := repo.Create(ctx, models.CreateItemRequest{Name: "Apple", Category: "food", Price: price})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Update(ctx, 1, models.UpdateItemRequest{Price: &price})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}
