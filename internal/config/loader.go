package config

import (
	"flag"
	"fmt"
)

// Load loads configuration with precedence: defaults → environment variables → command line flags
// It performs validation and runtime transformations before returning the configuration.
func Load() (*Config, error) {
	if !flag.Parsed() {
		flag.Parse()
	}

	cfg := defaultConfig()

	loadRedisFromEnv(&cfg.Redis)
	loadMQTTFromEnv(&cfg.MQTT)
	loadPostgresFromEnv(&cfg.Postgres)
	loadShadowFromEnv(&cfg.Shadow)
	loadPipelineFromEnv(&cfg.Pipeline)
	loadDispatcherFromEnv(&cfg.Dispatcher)
	loadBrokerAPIFromEnv(&cfg.BrokerAPI)
	loadKafkaFromEnv(&cfg.Kafka)
	loadHTTPFromEnv(&cfg.HTTP)

	applyRedisFlags(&cfg.Redis)
	applyMQTTFlags(&cfg.MQTT)
	applyPostgresFlags(&cfg.Postgres)
	applyShadowFlags(&cfg.Shadow)
	applyPipelineFlags(&cfg.Pipeline)
	applyDispatcherFlags(&cfg.Dispatcher)
	applyBrokerAPIFlags(&cfg.BrokerAPI)
	applyKafkaFlags(&cfg.Kafka)
	applyHTTPFlags(&cfg.HTTP)

	if err := applyRuntimeValidation(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
