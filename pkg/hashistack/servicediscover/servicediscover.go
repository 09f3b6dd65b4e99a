package servicediscover

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"tenant-gateway/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("servicediscover",
	fx.Invoke(registerConsul),
)

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

// Endpoint is where peers reach this gateway instance.
type Endpoint struct {
	Host string
	Port int
	TLS  bool
}

// EndpointFromConfig prefers CONSUL.SERVICE_HOST/PORT and falls back to the
// hostname and the HTTP listen port.
func EndpointFromConfig(cfg *config.Config) (Endpoint, error) {
	ep := Endpoint{Host: cfg.Consul.ServiceHost, Port: cfg.Consul.ServicePort, TLS: cfg.TLS.Enable}
	if ep.Host == "" {
		h, err := os.Hostname()
		if err != nil {
			return ep, fmt.Errorf("resolve service host: %w", err)
		}
		ep.Host = h
	}
	if ep.Port == 0 {
		addr := cfg.Server.Addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			addr = addr[i+1:]
		}
		p, err := strconv.Atoi(addr)
		if err != nil {
			return ep, fmt.Errorf("resolve service port from %q: %w", cfg.Server.Addr, err)
		}
		ep.Port = p
	}
	return ep, nil
}

// registerConsul announces the gateway to consul for the life of the process
// when CONSUL.ADDR is set.
func registerConsul(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Consul.Addr == "" {
		return nil
	}

	ep, err := EndpointFromConfig(cfg)
	if err != nil {
		return err
	}

	reg := Registration(cfg, ep)
	registry, err := NewConsulRegistry(cfg.Consul.Addr, reg)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("[Consul] registering gateway", zap.String("service_id", reg.ID))
			return registry.Register(ctx)
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[Consul] deregistering gateway", zap.String("service_id", reg.ID))
			return registry.Deregister(ctx)
		},
	})
	return nil
}

type ConsulRegistry struct {
	client  *api.Client
	service *api.AgentServiceRegistration
}

func NewConsulRegistry(address string, reg *api.AgentServiceRegistration) (*ConsulRegistry, error) {
	cc := api.DefaultConfig()
	cc.Address = address

	client, err := api.NewClient(cc)
	if err != nil {
		return nil, err
	}

	return &ConsulRegistry{client: client, service: reg}, nil
}

// Registration describes one gateway instance, health-checked through
// /readyz so consul drops it when the directory becomes unreachable.
func Registration(cfg *config.Config, ep Endpoint) *api.AgentServiceRegistration {
	scheme := "http"
	if ep.TLS {
		scheme = "https"
	}
	hostPort := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))

	tags := []string{"gateway", scheme, "node-" + strconv.FormatInt(cfg.NodeID, 10)}
	meta := map[string]string{"version": cfg.AppVersion}
	if cfg.RootDomain != "" {
		meta["root_domain"] = cfg.RootDomain
	}

	return &api.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%s", cfg.AppName, hostPort),
		Name:    cfg.AppName,
		Address: ep.Host,
		Port:    ep.Port,
		Tags:    tags,
		Meta:    meta,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("%s://%s/readyz", scheme, hostPort),
			TLSSkipVerify:                  ep.TLS,
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegister(r.service)
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregister(r.service.ID)
}
