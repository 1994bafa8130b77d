package discovery

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
)

type fakeLookup struct {
	mu   sync.Mutex
	urls map[string]string
}

func (f *fakeLookup) GetServiceURL(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url, ok := f.urls[name]; ok {
		return url, nil
	}
	return "", errors.New("no healthy instances")
}

func (f *fakeLookup) set(name, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[name] = url
}

func services() config.ServicesConfig {
	return config.ServicesConfig{
		CustomerURL:  "http://customer-service:8000",
		InventoryURL: "http://inventory-service:8001",
		SalesURL:     "http://sales-service:8002",
	}
}

func TestResolverWithoutConsulUsesFallbacks(t *testing.T) {
	r := NewResolver(nil, services(), zap.NewNop())

	assert.Equal(t, "http://customer-service:8000", r.ServiceURL(CustomerService))
	assert.Equal(t, "http://sales-service:8002", r.ServiceURL(SalesService))
	assert.Equal(t, "", r.ServiceURL("reviews-service"))
}

func TestResolverPrefersConsul(t *testing.T) {
	lookup := &fakeLookup{urls: map[string]string{InventoryService: "http://10.0.0.7:8001"}}
	r := NewResolver(lookup, services(), zap.NewNop())

	assert.Equal(t, "http://10.0.0.7:8001", r.ServiceURL(InventoryService))
	assert.Equal(t, "http://customer-service:8000", r.ServiceURL(CustomerService))
}

func TestResolverRefreshPicksUpChanges(t *testing.T) {
	lookup := &fakeLookup{urls: map[string]string{}}
	r := NewResolver(lookup, services(), zap.NewNop())
	assert.Equal(t, "http://customer-service:8000", r.ServiceURL(CustomerService))

	lookup.set(CustomerService, "http://10.0.0.9:8000")
	r.Refresh()

	assert.Equal(t, "http://10.0.0.9:8000", r.ServiceURL(CustomerService))
	assert.Equal(t, "http://10.0.0.9:8000", r.Snapshot()[CustomerService])
}
