// Package mqtt provides the broker connection: downstream publishing over a
// connection pool and the upstream subscription feeding the message bus.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/log"
)

// Handler receives one inbound publish.
type Handler func(topic string, payload []byte)

// Client wraps one broker connection. Subscriptions are remembered and
// restored whenever the connection is re-established.
type Client struct {
	client            mqtt.Client
	id                string
	qos               byte
	writeTimeout      time.Duration
	subscribeTimeout  time.Duration
	disconnectTimeout uint
	log               *log.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// NewClient creates a new MQTT client and connects it
func NewClient(cfg *config.MQTTConfig, logger *log.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetWriteTimeout(cfg.WriteTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetMessageChannelDepth(10000)
	opts.SetResumeSubs(true)
	// handlers run on their own goroutines; the bus does not rely on arrival order
	opts.SetOrderMatters(false)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err != nil {
			logger.Error("MQTT connection %s lost: %v", cfg.ClientID, err)
		}
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("MQTT %s reconnecting...", cfg.ClientID)
	})
	c := newClient(cfg, logger)
	opts.SetOnConnectHandler(c.onConnect)

	if cfg.TLSEnabled {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	return c, nil
}

func newClient(cfg *config.MQTTConfig, logger *log.Logger) *Client {
	return &Client{
		id:                cfg.ClientID,
		qos:               cfg.QoS,
		writeTimeout:      cfg.WriteTimeout,
		subscribeTimeout:  cfg.SubscribeTimeout,
		disconnectTimeout: cfg.DisconnectTimeout,
		log:               logger,
		subs:              make(map[string]Handler),
	}
}

func wrap(pc mqtt.Client, cfg *config.MQTTConfig, logger *log.Logger) *Client {
	c := newClient(cfg, logger)
	c.client = pc
	return c
}

// onConnect runs on every (re)connect. A clean session loses the broker
// side subscriptions, so each remembered filter is subscribed again.
func (c *Client) onConnect(_ mqtt.Client) {
	c.log.Info("MQTT %s connected", c.id)

	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for filter, h := range c.subs {
		subs[filter] = h
	}
	c.mu.Unlock()

	for filter, h := range subs {
		if err := c.subscribe(filter, h); err != nil {
			c.log.Error("MQTT %s failed to restore subscription: %v", c.id, err)
		}
	}
}

// newTLSConfig creates a TLS configuration from MQTT config
func newTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkip, // #nosec G402 - configurable for testing environments
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Publish sends payload to topic and waits for the broker to accept it
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, c.qos, false, payload)

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish to %s failed: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt publish to %s timeout", topic)
	}
}

// Subscribe registers handler for every publish matching filter
func (c *Client) Subscribe(filter string, handler Handler) error {
	if err := c.subscribe(filter, handler); err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[filter] = handler
	c.mu.Unlock()
	return nil
}

func (c *Client) subscribe(filter string, handler Handler) error {
	token := c.client.Subscribe(filter, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.subscribeTimeout) {
		return fmt.Errorf("mqtt subscription to %s timeout", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}
	c.log.Info("Subscribed to %s", filter)
	return nil
}

// Unsubscribe stops delivery for filter and forgets it
func (c *Client) Unsubscribe(filter string) error {
	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	token := c.client.Unsubscribe(filter)
	if !token.WaitTimeout(c.subscribeTimeout) {
		return fmt.Errorf("mqtt unsubscribe from %s timeout", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", filter, err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (c *Client) Close() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(c.disconnectTimeout)
	}
	return nil
}
