package discovery

import (
	"testing"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
)

func entry(id, address string, port int) *api.ServiceEntry {
	return &api.ServiceEntry{Service: &api.AgentService{ID: id, Address: address, Port: port}}
}

func TestPickInstanceIsStable(t *testing.T) {
	a := []*api.ServiceEntry{entry("sales-service-8012", "10.0.0.2", 8012), entry("sales-service-8002", "10.0.0.1", 8002)}
	b := []*api.ServiceEntry{a[1], a[0]}

	assert.Equal(t, "sales-service-8002", pickInstance(a).ID)
	assert.Equal(t, pickInstance(a), pickInstance(b))
}

func TestServiceURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.1:8002", serviceURL(&api.AgentService{Address: "10.0.0.1", Port: 8002}))
	assert.Equal(t, "http://localhost:8001", serviceURL(&api.AgentService{Port: 8001}))
}
