package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// loadRedisFromEnv loads Redis configuration from environment variables
func loadRedisFromEnv(cfg *RedisConfig) {
	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvString("REDIS_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := getEnvInt("REDIS_DB"); v != 0 {
		cfg.DB = v
	}
	if v := getEnvDuration("REDIS_DIAL_TIMEOUT"); v != 0 {
		cfg.DialTimeout = v
	}
	if v := getEnvDuration("REDIS_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("REDIS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("REDIS_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
}

// loadMQTTFromEnv loads MQTT configuration from environment variables
func loadMQTTFromEnv(cfg *MQTTConfig) {
	loadMQTTStrings(cfg)
	loadMQTTInts(cfg)
	loadMQTTTimeouts(cfg)
	loadMQTTTLS(cfg)
	loadMQTTBools(cfg)
}

func loadMQTTStrings(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := getEnvString("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := getEnvString("MQTT_SUBSCRIBE_TOPIC"); v != "" {
		cfg.SubscribeTopic = v
	}
}

func loadMQTTInts(cfg *MQTTConfig) {
	if v, ok := getEnvQoS("MQTT_QOS"); ok {
		cfg.QoS = v
	}
	if v := getEnvInt("MQTT_POOL_SIZE"); v != 0 {
		cfg.PoolSize = v
	}
	if v := getEnvInt("MQTT_DISCONNECT_TIMEOUT"); v > 0 {
		cfg.DisconnectTimeout = uint(v)
	}
}

func loadMQTTTimeouts(cfg *MQTTConfig) {
	if v := getEnvDuration("MQTT_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("MQTT_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL"); v != 0 {
		cfg.MaxReconnectInterval = v
	}
	if v := getEnvDuration("MQTT_SUBSCRIBE_TIMEOUT"); v != 0 {
		cfg.SubscribeTimeout = v
	}
}

func loadMQTTTLS(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_CA_CERT"); v != "" {
		cfg.CACert = v
	}
	if v := getEnvString("MQTT_CLIENT_CERT"); v != "" {
		cfg.ClientCert = v
	}
	if v := getEnvString("MQTT_CLIENT_KEY"); v != "" {
		cfg.ClientKey = v
	}
}

func loadMQTTBools(cfg *MQTTConfig) {
	if v := getEnvBool("MQTT_TLS_ENABLED"); v {
		cfg.TLSEnabled = v
	}
	if v := getEnvBool("MQTT_TLS_INSECURE_SKIP"); v {
		cfg.InsecureSkip = v
	}
	if v := getEnvBool("MQTT_USE_CERT_CN_CLIENT_ID"); v {
		cfg.UseCertCNClientID = v
	}
}

func loadPostgresFromEnv(cfg *PostgresConfig) {
	if v := getEnvString("POSTGRES_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); v != 0 {
		cfg.MaxOpenConns = v
	}
	if v := getEnvDuration("POSTGRES_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
}

func loadShadowFromEnv(cfg *ShadowConfig) {
	if v := getEnvString("SHADOW_KEY_PREFIX"); v != "" {
		cfg.KeyPrefix = v
	}
	if v := getEnvDuration("SHADOW_TTL"); v != 0 {
		cfg.TTL = v
	}
	if v := getEnvInt("SHADOW_MERGE_RETRIES"); v != 0 {
		cfg.MergeRetries = v
	}
	if v := getEnvString("SHADOW_DEVICE_CACHE_PREFIX"); v != "" {
		cfg.DeviceCachePrefix = v
	}
	if v := getEnvDuration("SHADOW_DEVICE_CACHE_TTL"); v != 0 {
		cfg.DeviceCacheTTL = v
	}
}

func loadPipelineFromEnv(cfg *PipelineConfig) {
	if v := getEnvInt("PIPELINE_WORKERS"); v != 0 {
		cfg.Workers = v
	}
	if v := getEnvInt("PIPELINE_QUEUE_SIZE"); v != 0 {
		cfg.QueueSize = v
	}
	if v := getEnvDuration("PIPELINE_TASK_TIMEOUT"); v != 0 {
		cfg.TaskTimeout = v
	}
	if v := getEnvDuration("PIPELINE_SHUTDOWN_TIMEOUT"); v != 0 {
		cfg.ShutdownTimeout = v
	}
}

func loadDispatcherFromEnv(cfg *DispatcherConfig) {
	if v := getEnvDuration("DISPATCHER_SEND_TIMEOUT"); v != 0 {
		cfg.SendTimeout = v
	}
}

func loadBrokerAPIFromEnv(cfg *BrokerAPIConfig) {
	if v := getEnvString("BROKER_API_URL"); v != "" {
		cfg.URL = v
	}
	if v := getEnvString("BROKER_API_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := getEnvString("BROKER_API_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := getEnvDuration("BROKER_API_TIMEOUT"); v != 0 {
		cfg.Timeout = v
	}
	if v := getEnvInt("BROKER_API_RETRY_COUNT"); v != 0 {
		cfg.RetryCount = v
	}
}

func loadKafkaFromEnv(cfg *KafkaConfig) {
	if v := getEnvList("KAFKA_BROKERS"); len(v) > 0 {
		cfg.Brokers = v
	}
	if v := getEnvString("KAFKA_TOPIC"); v != "" {
		cfg.Topic = v
	}
	if v := getEnvDuration("KAFKA_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
}

func loadHTTPFromEnv(cfg *HTTPConfig) {
	if v := getEnvString("HTTP_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvDuration("HTTP_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("HTTP_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
}

// Helper functions for reading environment variables

func getEnvString(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string) int {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intValue
}

func getEnvDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return duration
}

func getEnvBool(key string) bool {
	value := os.Getenv(key)
	return value == "true"
}

// getEnvQoS accepts 0, 1 or 2; anything else is ignored.
func getEnvQoS(key string) (byte, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	return parseQoS(value)
}

func parseQoS(value string) (byte, bool) {
	switch value {
	case "0":
		return 0, true
	case "1":
		return 1, true
	case "2":
		return 2, true
	}
	return 0, false
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	return splitList(os.Getenv(key))
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
