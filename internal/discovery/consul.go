package discovery

import (
	"fmt"
	"net"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
)

type ConsulClient struct {
	client    *api.Client
	advertise string
	logger    *zap.Logger
}

type ServiceConfig struct {
	Name string
	ID   string
	Port int
	Tags []string
}

func NewConsulClient(cfg config.ConsulConfig, logger *zap.Logger) (*ConsulClient, error) {
	apiCfg := api.DefaultConfig()
	apiCfg.Address = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	// Test connection
	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}

	logger.Info("connected to Consul", zap.String("address", apiCfg.Address))
	return &ConsulClient{client: client, advertise: cfg.AdvertiseAddress, logger: logger}, nil
}

// outboundIP is the address other hosts reach this one on.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// Register registers a service with an HTTP health check on /health. The
// configured advertise address wins over the detected outbound IP.
func (c *ConsulClient) Register(cfg ServiceConfig) error {
	hostIP := c.advertise
	if hostIP == "" {
		hostIP = outboundIP()
	}

	registration := &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    cfg.Port,
		Address: hostIP,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostIP, cfg.Port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}

	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.logger.Info("registered service",
		zap.String("name", cfg.Name), zap.String("id", cfg.ID),
		zap.String("address", hostIP), zap.Int("port", cfg.Port))
	return nil
}

// Deregister removes a service from Consul
func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	c.logger.Info("deregistered service", zap.String("id", serviceID))
	return nil
}

// GetServiceURL returns the URL of a healthy instance of a service. With
// several instances the lowest ID wins, so every caller resolves the same one
// and the resolver does not flap between refreshes.
func (c *ConsulClient) GetServiceURL(serviceName string) (string, error) {
	entries, _, err := c.client.Health().Service(serviceName, "", true, nil)
	if err != nil {
		return "", fmt.Errorf("failed to query %s: %w", serviceName, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no healthy instances of %s found", serviceName)
	}
	return serviceURL(pickInstance(entries)), nil
}

func pickInstance(entries []*api.ServiceEntry) *api.AgentService {
	best := entries[0].Service
	for _, e := range entries[1:] {
		if e.Service.ID < best.ID {
			best = e.Service
		}
	}
	return best
}

func serviceURL(s *api.AgentService) string {
	address := s.Address
	if address == "" {
		address = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", address, s.Port)
}
