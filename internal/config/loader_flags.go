package config

import (
	"flag"
	"time"
)

// Command line flags (have precedence over environment variables)
var (
	flagRedisAddress            *string
	flagRedisPassword           *string
	flagRedisDB                 *int
	flagRedisDialTimeout        *time.Duration
	flagRedisReadTimeout        *time.Duration
	flagRedisWriteTimeout       *time.Duration
	flagRedisPingTimeout        *time.Duration
	flagMQTTBroker              *string
	flagMQTTClientID            *string
	flagMQTTSubscribeTopic      *string
	flagMQTTQoS                 *int
	flagMQTTConnectTimeout      *time.Duration
	flagMQTTWriteTimeout        *time.Duration
	flagMQTTPoolSize            *int
	flagMQTTMaxReconnect        *time.Duration
	flagMQTTSubscribeTimeout    *time.Duration
	flagMQTTDisconnectTimeout   *int
	flagMQTTTLSEnabled          *bool
	flagMQTTCACert              *string
	flagMQTTClientCert          *string
	flagMQTTClientKey           *string
	flagMQTTTLSInsecureSkip     *bool
	flagMQTTUseCertCNClientID   *bool
	flagPostgresDSN             *string
	flagPostgresMaxOpenConns    *int
	flagPostgresPingTimeout     *time.Duration
	flagShadowKeyPrefix         *string
	flagShadowTTL               *time.Duration
	flagShadowMergeRetries      *int
	flagShadowDeviceCacheTTL    *time.Duration
	flagPipelineWorkers         *int
	flagPipelineQueueSize       *int
	flagPipelineTaskTimeout     *time.Duration
	flagPipelineShutdownTimeout *time.Duration
	flagDispatcherSendTimeout   *time.Duration
	flagBrokerAPIURL            *string
	flagBrokerAPIUsername       *string
	flagBrokerAPIPassword       *string
	flagBrokerAPITimeout        *time.Duration
	flagKafkaBrokers            *string
	flagKafkaTopic              *string
	flagHTTPAddress             *string
)

func init() {
	registerFlags(flag.CommandLine)
}

// registerFlags binds every configuration flag to fs.
func registerFlags(fs *flag.FlagSet) {
	// Redis flags
	flagRedisAddress = fs.String("redis-address", "", "Redis address")
	flagRedisPassword = fs.String("redis-password", "", "Redis password")
	flagRedisDB = fs.Int("redis-db", -1, "Redis database number")
	flagRedisDialTimeout = fs.Duration("redis-dial-timeout", 0, "Redis dial timeout")
	flagRedisReadTimeout = fs.Duration("redis-read-timeout", 0, "Redis read timeout")
	flagRedisWriteTimeout = fs.Duration("redis-write-timeout", 0, "Redis write timeout")
	flagRedisPingTimeout = fs.Duration("redis-ping-timeout", 0, "Redis ping timeout")

	// MQTT flags
	flagMQTTBroker = fs.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTClientID = fs.String("mqtt-client-id", "", "MQTT client ID")
	flagMQTTSubscribeTopic = fs.String("mqtt-subscribe-topic", "", "MQTT upstream topic filter")
	flagMQTTQoS = fs.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)")
	flagMQTTConnectTimeout = fs.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout")
	flagMQTTWriteTimeout = fs.Duration("mqtt-write-timeout", 0, "MQTT write timeout")
	flagMQTTPoolSize = fs.Int("mqtt-pool-size", 0, "MQTT publishing connection pool size")
	flagMQTTMaxReconnect = fs.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval")
	flagMQTTSubscribeTimeout = fs.Duration("mqtt-subscribe-timeout", 0, "MQTT subscribe timeout")
	flagMQTTDisconnectTimeout = fs.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)")
	flagMQTTTLSEnabled = fs.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS")
	flagMQTTCACert = fs.String("mqtt-ca-cert", "", "MQTT CA certificate path")
	flagMQTTClientCert = fs.String("mqtt-client-cert", "", "MQTT client certificate path")
	flagMQTTClientKey = fs.String("mqtt-client-key", "", "MQTT client key path")
	flagMQTTTLSInsecureSkip = fs.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification")
	flagMQTTUseCertCNClientID = fs.Bool("mqtt-use-cert-cn-client-id", false, "Prefix the MQTT client ID with the client cert CN")

	// Postgres flags
	flagPostgresDSN = fs.String("postgres-dsn", "", "PostgreSQL connection string")
	flagPostgresMaxOpenConns = fs.Int("postgres-max-open-conns", 0, "PostgreSQL max open connections")
	flagPostgresPingTimeout = fs.Duration("postgres-ping-timeout", 0, "PostgreSQL ping timeout")

	// Shadow flags
	flagShadowKeyPrefix = fs.String("shadow-key-prefix", "", "Device shadow key prefix")
	flagShadowTTL = fs.Duration("shadow-ttl", 0, "Device shadow sliding TTL")
	flagShadowMergeRetries = fs.Int("shadow-merge-retries", 0, "Optimistic retries for extension merges")
	flagShadowDeviceCacheTTL = fs.Duration("shadow-device-cache-ttl", 0, "Device lookup cache TTL")

	// Pipeline flags
	flagPipelineWorkers = fs.Int("pipeline-workers", 0, "Number of pool workers")
	flagPipelineQueueSize = fs.Int("pipeline-queue-size", 0, "Pool queue size")
	flagPipelineTaskTimeout = fs.Duration("pipeline-task-timeout", 0, "Per task timeout")
	flagPipelineShutdownTimeout = fs.Duration("pipeline-shutdown-timeout", 0, "Pipeline shutdown timeout")

	// Dispatcher flags
	flagDispatcherSendTimeout = fs.Duration("dispatcher-send-timeout", 0, "Per device downstream send timeout")

	// Broker API flags
	flagBrokerAPIURL = fs.String("broker-api-url", "", "Broker management API base URL")
	flagBrokerAPIUsername = fs.String("broker-api-username", "", "Broker management API user")
	flagBrokerAPIPassword = fs.String("broker-api-password", "", "Broker management API password")
	flagBrokerAPITimeout = fs.Duration("broker-api-timeout", 0, "Broker management API timeout")

	// Kafka flags
	flagKafkaBrokers = fs.String("kafka-brokers", "", "Comma separated Kafka brokers (empty disables forwarding)")
	flagKafkaTopic = fs.String("kafka-topic", "", "Kafka topic for forwarded device messages")

	// HTTP flags
	flagHTTPAddress = fs.String("http-address", "", "HTTP API listen address")
}

// applyRedisFlags applies command line flags to Redis configuration
func applyRedisFlags(cfg *RedisConfig) {
	if *flagRedisAddress != "" {
		cfg.Address = *flagRedisAddress
	}
	if *flagRedisPassword != "" {
		cfg.Password = *flagRedisPassword
	}
	if *flagRedisDB >= 0 {
		cfg.DB = *flagRedisDB
	}
	if *flagRedisDialTimeout != 0 {
		cfg.DialTimeout = *flagRedisDialTimeout
	}
	if *flagRedisReadTimeout != 0 {
		cfg.ReadTimeout = *flagRedisReadTimeout
	}
	if *flagRedisWriteTimeout != 0 {
		cfg.WriteTimeout = *flagRedisWriteTimeout
	}
	if *flagRedisPingTimeout != 0 {
		cfg.PingTimeout = *flagRedisPingTimeout
	}
}

// applyMQTTFlags applies command line flags to MQTT configuration
func applyMQTTFlags(cfg *MQTTConfig) {
	applyMQTTFlagStrings(cfg)
	applyMQTTFlagInts(cfg)
	applyMQTTFlagTimeouts(cfg)
	applyMQTTFlagTLS(cfg)
	applyMQTTFlagBools(cfg)
}

func applyMQTTFlagStrings(cfg *MQTTConfig) {
	if *flagMQTTBroker != "" {
		cfg.Broker = *flagMQTTBroker
	}
	if *flagMQTTClientID != "" {
		cfg.ClientID = *flagMQTTClientID
	}
	if *flagMQTTSubscribeTopic != "" {
		cfg.SubscribeTopic = *flagMQTTSubscribeTopic
	}
}

func applyMQTTFlagInts(cfg *MQTTConfig) {
	if *flagMQTTQoS >= 0 && *flagMQTTQoS <= 2 {
		cfg.QoS = byte(*flagMQTTQoS) // #nosec G115 - validated range 0-2
	}
	if *flagMQTTPoolSize != 0 {
		cfg.PoolSize = *flagMQTTPoolSize
	}
	if *flagMQTTDisconnectTimeout > 0 {
		cfg.DisconnectTimeout = uint(*flagMQTTDisconnectTimeout)
	}
}

func applyMQTTFlagTimeouts(cfg *MQTTConfig) {
	if *flagMQTTConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagMQTTConnectTimeout
	}
	if *flagMQTTWriteTimeout != 0 {
		cfg.WriteTimeout = *flagMQTTWriteTimeout
	}
	if *flagMQTTMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *flagMQTTMaxReconnect
	}
	if *flagMQTTSubscribeTimeout != 0 {
		cfg.SubscribeTimeout = *flagMQTTSubscribeTimeout
	}
}

func applyMQTTFlagTLS(cfg *MQTTConfig) {
	if *flagMQTTCACert != "" {
		cfg.CACert = *flagMQTTCACert
	}
	if *flagMQTTClientCert != "" {
		cfg.ClientCert = *flagMQTTClientCert
	}
	if *flagMQTTClientKey != "" {
		cfg.ClientKey = *flagMQTTClientKey
	}
}

func applyMQTTFlagBools(cfg *MQTTConfig) {
	// Bool flags only override when explicitly set
	if isFlagSet("mqtt-tls-enabled") {
		cfg.TLSEnabled = *flagMQTTTLSEnabled
	}
	if isFlagSet("mqtt-tls-insecure-skip") {
		cfg.InsecureSkip = *flagMQTTTLSInsecureSkip
	}
	if isFlagSet("mqtt-use-cert-cn-client-id") {
		cfg.UseCertCNClientID = *flagMQTTUseCertCNClientID
	}
}

func applyPostgresFlags(cfg *PostgresConfig) {
	if *flagPostgresDSN != "" {
		cfg.DSN = *flagPostgresDSN
	}
	if *flagPostgresMaxOpenConns != 0 {
		cfg.MaxOpenConns = *flagPostgresMaxOpenConns
	}
	if *flagPostgresPingTimeout != 0 {
		cfg.PingTimeout = *flagPostgresPingTimeout
	}
}

func applyShadowFlags(cfg *ShadowConfig) {
	if *flagShadowKeyPrefix != "" {
		cfg.KeyPrefix = *flagShadowKeyPrefix
	}
	if *flagShadowTTL != 0 {
		cfg.TTL = *flagShadowTTL
	}
	if *flagShadowMergeRetries != 0 {
		cfg.MergeRetries = *flagShadowMergeRetries
	}
	if *flagShadowDeviceCacheTTL != 0 {
		cfg.DeviceCacheTTL = *flagShadowDeviceCacheTTL
	}
}

func applyPipelineFlags(cfg *PipelineConfig) {
	if *flagPipelineWorkers != 0 {
		cfg.Workers = *flagPipelineWorkers
	}
	if *flagPipelineQueueSize != 0 {
		cfg.QueueSize = *flagPipelineQueueSize
	}
	if *flagPipelineTaskTimeout != 0 {
		cfg.TaskTimeout = *flagPipelineTaskTimeout
	}
	if *flagPipelineShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flagPipelineShutdownTimeout
	}
}

func applyDispatcherFlags(cfg *DispatcherConfig) {
	if *flagDispatcherSendTimeout != 0 {
		cfg.SendTimeout = *flagDispatcherSendTimeout
	}
}

func applyBrokerAPIFlags(cfg *BrokerAPIConfig) {
	if *flagBrokerAPIURL != "" {
		cfg.URL = *flagBrokerAPIURL
	}
	if *flagBrokerAPIUsername != "" {
		cfg.Username = *flagBrokerAPIUsername
	}
	if *flagBrokerAPIPassword != "" {
		cfg.Password = *flagBrokerAPIPassword
	}
	if *flagBrokerAPITimeout != 0 {
		cfg.Timeout = *flagBrokerAPITimeout
	}
}

func applyKafkaFlags(cfg *KafkaConfig) {
	if v := splitList(*flagKafkaBrokers); len(v) > 0 {
		cfg.Brokers = v
	}
	if *flagKafkaTopic != "" {
		cfg.Topic = *flagKafkaTopic
	}
}

func applyHTTPFlags(cfg *HTTPConfig) {
	if *flagHTTPAddress != "" {
		cfg.Address = *flagHTTPAddress
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
