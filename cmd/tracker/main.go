package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tabwatch/tabwatch/internal/archive"
	"github.com/tabwatch/tabwatch/internal/config"
	"github.com/tabwatch/tabwatch/internal/consumer"
	"github.com/tabwatch/tabwatch/internal/resolver"
	"github.com/tabwatch/tabwatch/internal/store"
	"github.com/tabwatch/tabwatch/internal/tracker"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/tabwatch.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	log.Info().
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Str("redis_addr", cfg.Redis.Addr).
		Str("clickhouse_addr", cfg.ClickHouse.Addr).
		Str("geo_api_url", cfg.Resolver.GeoAPIURL).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable state. Without Redis the tracker still runs, memory-only.
	var kv store.KV
	if cfg.Redis.Addr != "" {
		redisKV, err := store.NewRedisKV(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		kv = redisKV
		log.Info().Msg("Connected to Redis")
	} else {
		log.Warn().Msg("No Redis address configured, state will not survive restarts")
		kv = store.NewMemoryKV()
	}

	st, err := store.Open(ctx, kv)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted state")
	}

	// IP resolution
	opts := resolver.Options{
		Geo:             resolver.NewHTTPGeoClient(cfg.Resolver.GeoAPIURL),
		Timeout:         cfg.Resolver.Timeout,
		FailureCooldown: cfg.Resolver.FailureCooldown,
	}
	if cfg.Resolver.GeoIPDBPath != "" {
		geoDB, err := geoip2.Open(cfg.Resolver.GeoIPDBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Resolver.GeoIPDBPath).Msg("Failed to open GeoIP database")
		}
		defer geoDB.Close()
		opts.GeoDB = geoDB
		log.Info().Str("path", cfg.Resolver.GeoIPDBPath).Msg("GeoIP database loaded")
	}
	ipResolver := resolver.New(opts)

	// Optional long-term archive
	var arch tracker.Archiver
	var ch *archive.ClickHouse
	if cfg.ClickHouse.Addr != "" {
		ch, err = archive.New(cfg.ClickHouse, cfg.Batch)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
		}
		arch = ch
		log.Info().Msg("Connected to ClickHouse")
	}

	agg := tracker.New(st, ipResolver, arch)

	kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.Kafka, agg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer")
	}
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		kafkaConsumer.Start(ctx)
	}()

	log.Info().Msg("Tracker started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()
	kafkaConsumer.Close()
	<-consumerDone
	agg.Stop()

	if ch != nil {
		ch.Close()
	}

	log.Info().Msg("Shutdown complete")
}
