package config

import (
	"testing"
	"time"
)

func TestApplyRedisFlags(t *testing.T) {
	resetTestFlags(t, "-redis-address=flag-redis:6379", "-redis-db=4", "-redis-ping-timeout=1s")

	cfg := defaultRedisConfig()
	applyRedisFlags(&cfg)

	if cfg.Address != "flag-redis:6379" {
		t.Errorf("Address = %s; want flag-redis:6379", cfg.Address)
	}
	if cfg.DB != 4 {
		t.Errorf("DB = %d; want 4", cfg.DB)
	}
	if cfg.PingTimeout != time.Second {
		t.Errorf("PingTimeout = %v; want 1s", cfg.PingTimeout)
	}
}

func TestApplyRedisFlags_Unset(t *testing.T) {
	resetTestFlags(t)

	cfg := defaultRedisConfig()
	cfg.DB = 6
	applyRedisFlags(&cfg)

	if cfg.DB != 6 {
		t.Errorf("DB = %d; want 6 to survive unset flag", cfg.DB)
	}
}

func TestApplyMQTTFlags(t *testing.T) {
	resetTestFlags(t,
		"-mqtt-broker=tcp://flag:1883",
		"-mqtt-qos=0",
		"-mqtt-pool-size=2",
		"-mqtt-subscribe-topic=/iot/P9/#",
		"-mqtt-tls-enabled",
	)

	cfg := defaultMQTTConfig()
	applyMQTTFlags(&cfg)

	if cfg.Broker != "tcp://flag:1883" {
		t.Errorf("Broker = %s; want tcp://flag:1883", cfg.Broker)
	}
	if cfg.QoS != 0 {
		t.Errorf("QoS = %d; want 0", cfg.QoS)
	}
	if cfg.PoolSize != 2 {
		t.Errorf("PoolSize = %d; want 2", cfg.PoolSize)
	}
	if cfg.SubscribeTopic != "/iot/P9/#" {
		t.Errorf("SubscribeTopic = %s; want /iot/P9/#", cfg.SubscribeTopic)
	}
	if !cfg.TLSEnabled {
		t.Error("TLSEnabled = false; want true")
	}
}

func TestApplyMQTTFlags_BoolOnlyWhenSet(t *testing.T) {
	resetTestFlags(t)

	cfg := defaultMQTTConfig()
	cfg.TLSEnabled = true
	applyMQTTFlags(&cfg)

	if !cfg.TLSEnabled {
		t.Error("TLSEnabled = false; an unset flag must not override")
	}
}

func TestApplyShadowAndPipelineFlags(t *testing.T) {
	resetTestFlags(t,
		"-shadow-ttl=24h",
		"-shadow-merge-retries=2",
		"-pipeline-workers=3",
		"-pipeline-task-timeout=2s",
	)

	shadow := defaultShadowConfig()
	pipeline := defaultPipelineConfig()
	applyShadowFlags(&shadow)
	applyPipelineFlags(&pipeline)

	if shadow.TTL != 24*time.Hour {
		t.Errorf("TTL = %v; want 24h", shadow.TTL)
	}
	if shadow.MergeRetries != 2 {
		t.Errorf("MergeRetries = %d; want 2", shadow.MergeRetries)
	}
	if pipeline.Workers != 3 {
		t.Errorf("Workers = %d; want 3", pipeline.Workers)
	}
	if pipeline.TaskTimeout != 2*time.Second {
		t.Errorf("TaskTimeout = %v; want 2s", pipeline.TaskTimeout)
	}
}

func TestApplyKafkaAndHTTPFlags(t *testing.T) {
	resetTestFlags(t, "-kafka-brokers=k1:9092,k2:9092", "-kafka-topic=fwd", "-http-address=:9090")

	kafka := defaultKafkaConfig()
	httpCfg := defaultHTTPConfig()
	applyKafkaFlags(&kafka)
	applyHTTPFlags(&httpCfg)

	if len(kafka.Brokers) != 2 {
		t.Errorf("Brokers = %v; want 2 entries", kafka.Brokers)
	}
	if kafka.Topic != "fwd" {
		t.Errorf("Topic = %s; want fwd", kafka.Topic)
	}
	if httpCfg.Address != ":9090" {
		t.Errorf("Address = %s; want :9090", httpCfg.Address)
	}
}

func TestIsFlagSet(t *testing.T) {
	resetTestFlags(t, "-mqtt-tls-insecure-skip=false")

	if !isFlagSet("mqtt-tls-insecure-skip") {
		t.Error("isFlagSet(mqtt-tls-insecure-skip) = false; want true")
	}
	if isFlagSet("mqtt-tls-enabled") {
		t.Error("isFlagSet(mqtt-tls-enabled) = true; want false")
	}
}
