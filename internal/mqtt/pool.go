package mqtt

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/log"
)

// Pool spreads downstream publishes over several connections. The first
// connection also carries the upstream subscription.
type Pool struct {
	clients []*Client
	next    atomic.Uint64
	log     *log.Logger
}

// NewPool opens cfg.PoolSize connections
func NewPool(cfg *config.MQTTConfig, logger *log.Logger) (*Pool, error) {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}

	// several router instances may share one config
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	base := fmt.Sprintf("%s-%s-%d", cfg.ClientID, hostname, os.Getpid())

	clients := make([]*Client, size)
	for i := 0; i < size; i++ {
		clientCfg := *cfg
		clientCfg.ClientID = fmt.Sprintf("%s-%d", base, i)

		client, err := NewClient(&clientCfg, logger)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = clients[j].Close()
			}
			return nil, fmt.Errorf("failed to create client %d: %w", i, err)
		}
		clients[i] = client
	}

	return newPool(clients, logger), nil
}

func newPool(clients []*Client, logger *log.Logger) *Pool {
	return &Pool{clients: clients, log: logger}
}

// Size returns the number of connections
func (p *Pool) Size() int {
	return len(p.clients)
}

// Publish publishes using round-robin across connections
func (p *Pool) Publish(ctx context.Context, topic string, payload []byte) error {
	idx := p.next.Add(1) % uint64(len(p.clients)) // #nosec G115
	return p.clients[idx].Publish(ctx, topic, payload)
}

// Subscribe subscribes on the first connection
func (p *Pool) Subscribe(filter string, handler Handler) error {
	return p.clients[0].Subscribe(filter, handler)
}

// Unsubscribe unsubscribes on the first connection
func (p *Pool) Unsubscribe(filter string) error {
	return p.clients[0].Unsubscribe(filter)
}

// Close closes all connections in the pool
func (p *Pool) Close() error {
	var lastErr error
	for i, client := range p.clients {
		if err := client.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close client %d: %w", i, err)
		}
	}
	return lastErr
}
