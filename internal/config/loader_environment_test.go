package config

import (
	"testing"
	"time"
)

func TestLoadRedisFromEnv(t *testing.T) {
	cfg := defaultRedisConfig()

	t.Setenv("REDIS_ADDRESS", "redis-test:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_DIAL_TIMEOUT", "5s")
	t.Setenv("REDIS_READ_TIMEOUT", "7s")
	t.Setenv("REDIS_WRITE_TIMEOUT", "3s")
	t.Setenv("REDIS_PING_TIMEOUT", "2s")

	loadRedisFromEnv(&cfg)

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Address", cfg.Address, "redis-test:6379"},
		{"Password", cfg.Password, "secret"},
		{"DB", cfg.DB, 2},
		{"DialTimeout", cfg.DialTimeout, 5 * time.Second},
		{"ReadTimeout", cfg.ReadTimeout, 7 * time.Second},
		{"WriteTimeout", cfg.WriteTimeout, 3 * time.Second},
		{"PingTimeout", cfg.PingTimeout, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("loadRedisFromEnv() %s = %v; want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadMQTTFromEnv(t *testing.T) {
	cfg := defaultMQTTConfig()

	t.Setenv("MQTT_BROKER", "ssl://mqtt-test:8883")
	t.Setenv("MQTT_CLIENT_ID", "router-1")
	t.Setenv("MQTT_SUBSCRIBE_TOPIC", "/iot/P1/#")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("MQTT_POOL_SIZE", "8")
	t.Setenv("MQTT_DISCONNECT_TIMEOUT", "500")
	t.Setenv("MQTT_CONNECT_TIMEOUT", "4s")
	t.Setenv("MQTT_TLS_ENABLED", "true")
	t.Setenv("MQTT_CA_CERT", "/certs/ca.pem")
	t.Setenv("MQTT_USE_CERT_CN_CLIENT_ID", "true")

	loadMQTTFromEnv(&cfg)

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Broker", cfg.Broker, "ssl://mqtt-test:8883"},
		{"ClientID", cfg.ClientID, "router-1"},
		{"SubscribeTopic", cfg.SubscribeTopic, "/iot/P1/#"},
		{"QoS", cfg.QoS, byte(2)},
		{"PoolSize", cfg.PoolSize, 8},
		{"DisconnectTimeout", cfg.DisconnectTimeout, uint(500)},
		{"ConnectTimeout", cfg.ConnectTimeout, 4 * time.Second},
		{"TLSEnabled", cfg.TLSEnabled, true},
		{"CACert", cfg.CACert, "/certs/ca.pem"},
		{"UseCertCNClientID", cfg.UseCertCNClientID, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("loadMQTTFromEnv() %s = %v; want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadMQTTFromEnv_QoSZero(t *testing.T) {
	cfg := defaultMQTTConfig()
	t.Setenv("MQTT_QOS", "0")

	loadMQTTFromEnv(&cfg)

	if cfg.QoS != 0 {
		t.Errorf("QoS = %d; want 0", cfg.QoS)
	}
}

func TestLoadMQTTFromEnv_InvalidQoSIgnored(t *testing.T) {
	cfg := defaultMQTTConfig()
	t.Setenv("MQTT_QOS", "7")

	loadMQTTFromEnv(&cfg)

	if cfg.QoS != 1 {
		t.Errorf("QoS = %d; want default 1", cfg.QoS)
	}
}

func TestLoadShadowAndPostgresFromEnv(t *testing.T) {
	shadow := defaultShadowConfig()
	pg := defaultPostgresConfig()

	t.Setenv("SHADOW_KEY_PREFIX", "shadow:")
	t.Setenv("SHADOW_MERGE_RETRIES", "9")
	t.Setenv("SHADOW_DEVICE_CACHE_PREFIX", "dev:")
	t.Setenv("POSTGRES_DSN", "postgres://u:p@db/iot")
	t.Setenv("POSTGRES_MAX_OPEN_CONNS", "3")

	loadShadowFromEnv(&shadow)
	loadPostgresFromEnv(&pg)

	if shadow.KeyPrefix != "shadow:" {
		t.Errorf("KeyPrefix = %s; want shadow:", shadow.KeyPrefix)
	}
	if shadow.MergeRetries != 9 {
		t.Errorf("MergeRetries = %d; want 9", shadow.MergeRetries)
	}
	if shadow.DeviceCachePrefix != "dev:" {
		t.Errorf("DeviceCachePrefix = %s; want dev:", shadow.DeviceCachePrefix)
	}
	if pg.DSN != "postgres://u:p@db/iot" {
		t.Errorf("DSN = %s; want postgres://u:p@db/iot", pg.DSN)
	}
	if pg.MaxOpenConns != 3 {
		t.Errorf("MaxOpenConns = %d; want 3", pg.MaxOpenConns)
	}
}

func TestLoadBrokerAPIAndKafkaFromEnv(t *testing.T) {
	api := defaultBrokerAPIConfig()
	kafka := defaultKafkaConfig()

	t.Setenv("BROKER_API_URL", "http://emqx:18083")
	t.Setenv("BROKER_API_USERNAME", "admin")
	t.Setenv("BROKER_API_RETRY_COUNT", "4")
	t.Setenv("KAFKA_BROKERS", "a:9092,,b:9092 ")
	t.Setenv("KAFKA_TOPIC", "device-events")

	loadBrokerAPIFromEnv(&api)
	loadKafkaFromEnv(&kafka)

	if api.URL != "http://emqx:18083" {
		t.Errorf("URL = %s; want http://emqx:18083", api.URL)
	}
	if api.Username != "admin" {
		t.Errorf("Username = %s; want admin", api.Username)
	}
	if api.RetryCount != 4 {
		t.Errorf("RetryCount = %d; want 4", api.RetryCount)
	}
	if len(kafka.Brokers) != 2 || kafka.Brokers[0] != "a:9092" || kafka.Brokers[1] != "b:9092" {
		t.Errorf("Brokers = %v; want [a:9092 b:9092]", kafka.Brokers)
	}
	if kafka.Topic != "device-events" {
		t.Errorf("Topic = %s; want device-events", kafka.Topic)
	}
}

func TestGetEnvHelpers_InvalidValues(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_DURATION", "soon")
	t.Setenv("TEST_BOOL", "yes")

	if v := getEnvInt("TEST_INT"); v != 0 {
		t.Errorf("getEnvInt() = %d; want 0", v)
	}
	if v := getEnvDuration("TEST_DURATION"); v != 0 {
		t.Errorf("getEnvDuration() = %v; want 0", v)
	}
	if v := getEnvBool("TEST_BOOL"); v {
		t.Error("getEnvBool() = true; want false")
	}
	if v := getEnvList("TEST_UNSET_LIST"); v != nil {
		t.Errorf("getEnvList() = %v; want nil", v)
	}
}
