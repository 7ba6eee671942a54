package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tabwatch/tabwatch/internal/config"
	"github.com/tabwatch/tabwatch/internal/producer"
	"github.com/tabwatch/tabwatch/internal/risk"
	"github.com/tabwatch/tabwatch/internal/server"
	"github.com/tabwatch/tabwatch/internal/store"
	"github.com/tabwatch/tabwatch/internal/summarizer"
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

	log.Info().Msg("Starting tabwatch dashboard...")

	ctx := context.Background()

	var kv store.KV
	if cfg.Redis.Addr != "" {
		redisKV, err := store.NewRedisKV(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		kv = redisKV
		log.Info().Msg("Connected to Redis")
	} else {
		log.Warn().Msg("No Redis address configured, dashboard will only see its own writes")
		kv = store.NewMemoryKV()
	}

	st, err := store.Open(ctx, kv)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted state")
	}

	kafkaProducer, err := producer.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka producer")
	}
	defer kafkaProducer.Close()
	log.Info().Msg("Kafka producer initialized")

	scorer := risk.NewScorer(cfg.Risk.HighRiskCountries)
	sum := summarizer.New(cfg.Summarizer)

	srv := server.New(st, scorer, sum, kafkaProducer)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: srv.Router(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	httpServer.Shutdown(context.Background())
	log.Info().Msg("Server stopped")
}
