package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Risk       RiskConfig       `yaml:"risk"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Batch      BatchConfig      `yaml:"batch"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ClickHouseConfig enables the optional event archive when Addr is set.
type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type ResolverConfig struct {
	GeoAPIURL       string        `yaml:"geo_api_url"`
	GeoIPDBPath     string        `yaml:"geoip_db_path"`
	Timeout         time.Duration `yaml:"timeout"`
	FailureCooldown time.Duration `yaml:"failure_cooldown"`
}

type RiskConfig struct {
	HighRiskCountries []string `yaml:"high_risk_countries"`
}

type SummarizerConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type BatchConfig struct {
	Size          int           `yaml:"size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "tabwatch.events.raw"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "tabwatch-tracker"
	}
	if cfg.Resolver.GeoAPIURL == "" {
		cfg.Resolver.GeoAPIURL = "http://ip-api.com/json"
	}
	if cfg.Resolver.Timeout == 0 {
		cfg.Resolver.Timeout = 3 * time.Second
	}
	if cfg.Resolver.FailureCooldown == 0 {
		cfg.Resolver.FailureCooldown = time.Hour
	}
	if cfg.Summarizer.URL == "" {
		cfg.Summarizer.URL = "http://localhost:11434/api/generate"
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "llama3.2:3b-instruct-q8_0"
	}
	if cfg.Summarizer.Timeout == 0 {
		cfg.Summarizer.Timeout = 2 * time.Minute
	}
	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 500
	}
	if cfg.Batch.FlushInterval == 0 {
		cfg.Batch.FlushInterval = 5 * time.Second
	}
	if cfg.ClickHouse.MaxOpenConns == 0 {
		cfg.ClickHouse.MaxOpenConns = 10
	}
	if cfg.ClickHouse.MaxIdleConns == 0 {
		cfg.ClickHouse.MaxIdleConns = 5
	}

	return &cfg, nil
}
