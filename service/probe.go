package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/orchestra/internal/tlsutil"
)

// Prober performs one bounded-time liveness check against an endpoint.
type Prober interface {
	Probe(ctx context.Context, ep Endpoint) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, ep Endpoint) error

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, ep Endpoint) error { return f(ctx, ep) }

var defaultProbeClient = tlsutil.HTTPClient(0)

// HTTPProber requires 200 from GET {url}{health_endpoint}.
type HTTPProber struct {
	Client *http.Client
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, ep Endpoint) error {
	client := p.Client
	if client == nil {
		client = defaultProbeClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL()+ep.HealthEndpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// RedisProber issues PING and requires PONG. Clients are cached per address.
type RedisProber struct {
	mu      sync.Mutex
	clients map[string]*redis.Client
}

// NewRedisProber creates a Redis prober.
func NewRedisProber() *RedisProber {
	return &RedisProber{clients: make(map[string]*redis.Client)}
}

func (p *RedisProber) client(addr string) *redis.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[addr]; ok {
		return c
	}
	c := redis.NewClient(&redis.Options{
		Addr:       addr,
		MaxRetries: -1,
		PoolSize:   2,
	})
	p.clients[addr] = c
	return c
}

// Probe implements Prober.
func (p *RedisProber) Probe(ctx context.Context, ep Endpoint) error {
	pong, err := p.client(ep.Address()).Ping(ctx).Result()
	if err != nil {
		return err
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected PING reply %q", pong)
	}
	return nil
}

// Close closes cached clients.
func (p *RedisProber) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for addr, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, addr)
	}
	return firstErr
}

// TCPProber only checks that a TCP connection can be opened.
type TCPProber struct{}

// Probe implements Prober.
func (TCPProber) Probe(ctx context.Context, ep Endpoint) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		return err
	}
	return conn.Close()
}
