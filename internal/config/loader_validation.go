package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	validators := []func(*Config) error{
		func(c *Config) error { return validateRedis(&c.Redis) },
		func(c *Config) error { return validateMQTT(&c.MQTT) },
		func(c *Config) error { return validatePostgres(&c.Postgres) },
		func(c *Config) error { return validateShadow(&c.Shadow) },
		func(c *Config) error { return validatePipeline(&c.Pipeline) },
		func(c *Config) error { return validateKafka(&c.Kafka) },
		func(c *Config) error { return validateHTTP(&c.HTTP) },
	}
	for _, v := range validators {
		if err := v(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateRedis(cfg *RedisConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.DB < 0 {
		return fmt.Errorf("redis db cannot be negative")
	}
	return nil
}

func validateMQTT(cfg *MQTTConfig) error {
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.PoolSize < 1 {
		return fmt.Errorf("mqtt pool size must be positive")
	}
	if cfg.SubscribeTopic == "" {
		return fmt.Errorf("mqtt subscribe topic cannot be empty")
	}
	if cfg.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	return nil
}

func validatePostgres(cfg *PostgresConfig) error {
	if cfg.DSN == "" {
		return fmt.Errorf("postgres dsn cannot be empty")
	}
	return nil
}

func validateShadow(cfg *ShadowConfig) error {
	if cfg.KeyPrefix == "" {
		return fmt.Errorf("shadow key prefix cannot be empty")
	}
	if cfg.TTL <= 0 {
		return fmt.Errorf("shadow ttl must be positive")
	}
	if cfg.MergeRetries < 1 {
		return fmt.Errorf("shadow merge retries must be positive")
	}
	return nil
}

func validatePipeline(cfg *PipelineConfig) error {
	if cfg.Workers < 1 {
		return fmt.Errorf("pipeline workers must be positive")
	}
	if cfg.QueueSize < 1 {
		return fmt.Errorf("pipeline queue size must be positive")
	}
	return nil
}

func validateKafka(cfg *KafkaConfig) error {
	if len(cfg.Brokers) > 0 && cfg.Topic == "" {
		return fmt.Errorf("kafka topic cannot be empty when brokers are set")
	}
	return nil
}

func validateHTTP(cfg *HTTPConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}
	if !strings.Contains(cfg.Address, ":") {
		return fmt.Errorf("http address %q must include a port", cfg.Address)
	}
	return nil
}
