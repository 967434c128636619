// Package config provides configuration loading and validation from environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration
type Config struct {
	Redis      RedisConfig
	MQTT       MQTTConfig
	Postgres   PostgresConfig
	Shadow     ShadowConfig
	Pipeline   PipelineConfig
	Dispatcher DispatcherConfig
	BrokerAPI  BrokerAPIConfig
	Kafka      KafkaConfig
	HTTP       HTTPConfig
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Broker               string
	ClientID             string
	SubscribeTopic       string // upstream filter, normally /iot/#
	QoS                  byte
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	PoolSize             int // connections used for downstream publishing
	MaxReconnectInterval time.Duration
	SubscribeTimeout     time.Duration
	DisconnectTimeout    uint // milliseconds
	// TLS Configuration
	TLSEnabled        bool
	CACert            string
	ClientCert        string
	ClientKey         string
	InsecureSkip      bool
	UseCertCNClientID bool // prefix the client id with the client cert CN
}

// PostgresConfig holds the history store and device registry connection
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	PingTimeout  time.Duration
}

// ShadowConfig holds device shadow cache settings
type ShadowConfig struct {
	KeyPrefix         string
	TTL               time.Duration
	MergeRetries      int
	DeviceCachePrefix string
	DeviceCacheTTL    time.Duration
}

// PipelineConfig holds worker pool and lifecycle settings
type PipelineConfig struct {
	Workers         int
	QueueSize       int
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DispatcherConfig holds command dispatch settings
type DispatcherConfig struct {
	SendTimeout time.Duration
}

// BrokerAPIConfig holds the broker management API used to close device connections
type BrokerAPIConfig struct {
	URL        string
	Username   string
	Password   string
	Timeout    time.Duration
	RetryCount int
}

// KafkaConfig holds the optional forwarder settings. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// HTTPConfig holds the API listener settings
type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
