package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cerfacs-go/dsclim/internal/dsclim/datasource"
	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/emit"
	"github.com/cerfacs-go/dsclim/internal/dsclim/learning/learningstore"
	"github.com/cerfacs-go/dsclim/internal/dsclim/orchestrate"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
	"github.com/cerfacs-go/dsclim/pkg/config"
	"github.com/cerfacs-go/dsclim/pkg/health"
	"github.com/cerfacs-go/dsclim/pkg/llm"
	"github.com/cerfacs-go/dsclim/pkg/mqtt"
	"github.com/cerfacs-go/dsclim/pkg/postgres"
	"github.com/cerfacs-go/dsclim/pkg/redis"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

func main() {
	// Standard bootstrap: defaults, then environment, then flags, then YAML.
	cfg := config.NewConfig()
	cfg.ServiceName = "dsclim"
	dataDir := pflag.String("data-dir", "./data", "directory holding all_days.json and one <season>.json per configured season")
	cfg.LoadFromEnv()
	configPath := cfg.LoadFromFlags()

	if err := config.Load(configPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting dsclim", "data_dir", *dataDir, "cache_backend", cfg.Learning.CacheBackend, "seasons", len(cfg.Seasons))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	analogCache := buildAnalogCache(cfg, logger)

	checker := health.NewChecker(nil, analogCache, logger)
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", checker.HandlerFunc())
		addr := fmt.Sprintf(":%d", cfg.HealthPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("health endpoint stopped", "error", err)
		}
	}()

	in, err := datasource.Load(*dataDir, cfg)
	if err != nil {
		logger.Error("loading run inputs failed", "error", err)
		os.Exit(1)
	}
	in.Narrator = buildNarrator(cfg, logger)
	in.AnalogCache = analogCache

	store, err := buildLearningStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("building learning store failed", "error", err)
		os.Exit(1)
	}

	emitter, err := buildEmitter(ctx, cfg, logger)
	if err != nil {
		logger.Error("building emitter failed", "error", err)
		os.Exit(1)
	}
	defer emitter.Close()

	run := types.RunMetadata{
		RunID:       fmt.Sprintf("%s-%s", cfg.ServiceName, uuid.New().String()),
		GeneratedAt: time.Now().UTC(),
		MasterSeed:  cfg.MasterSeed,
	}
	anchor := orchestrate.Anchor{Lon: cfg.Geo.Lon, Lat: cfg.Geo.Lat}

	runErr := make(chan error, 1)
	go func() {
		runErr <- orchestrate.Run(ctx, in, store, emitter, run, anchor, logger)
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, canceling run")
		cancel()
		<-runErr
		return
	case err := <-runErr:
		if err != nil {
			class, _ := dsclimerr.As(err)
			logger.Error("run failed", "class", class, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("dsclim run finished", "run_id", run.RunID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLearningStore wires the configured cache backend to a concrete
// learningstore.Store, connecting to Postgres only when selected.
func buildLearningStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (learningstore.Store, error) {
	switch cfg.Learning.CacheBackend {
	case "postgres":
		pgClient := postgres.NewClient(cfg, logger)
		if err := pgClient.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connecting to postgres for learning cache: %w", err)
		}
		return learningstore.NewPostgresStore(pgClient.DB(), logger), nil
	default:
		return learningstore.NewFileStore(cfg.Learning.CacheDir, logger), nil
	}
}

// buildAnalogCache wires a Redis client into the Analog Finder's
// working-set cache when Learning.AnalogCacheEnabled is set; nil
// disables caching entirely without the finder ever knowing why.
func buildAnalogCache(cfg *config.Config, logger *slog.Logger) redis.Client {
	if !cfg.Learning.AnalogCacheEnabled {
		return nil
	}
	return redis.NewClient(cfg, logger)
}

// buildEmitter wires the downscaled-day output to MQTT, publishing
// each day under <ServiceName>/downscaled/<date>; the run id travels in
// each payload, not in the topic.
func buildEmitter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (emit.Emitter, error) {
	mqttClient := mqtt.NewClient(cfg, logger)
	if err := mqttClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	topicBase := fmt.Sprintf("%s/downscaled", cfg.ServiceName)
	return emit.NewMQTTEmitter(mqttClient, topicBase, 1, logger), nil
}

// llmNarrator adapts pkg/llm's generic Client to orchestrate.Narrator.
type llmNarrator struct {
	client llm.Client
	model  string
}

func buildNarrator(cfg *config.Config, logger *slog.Logger) orchestrate.Narrator {
	if !cfg.Narrative.Enabled {
		return nil
	}
	return &llmNarrator{
		client: llm.NewOllamaClient(cfg.Narrative.Endpoint, logger),
		model:  cfg.Narrative.Model,
	}
}

func (n *llmNarrator) Narrate(ctx context.Context, summary orchestrate.RunSummary) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize this statistical downscaling run in two sentences for an operator reading a log. "+
			"Run id: %s. Seasons processed: %d. Downscaled-day counts per season: %v.",
		summary.RunID, summary.SeasonCount, summary.CandidatePoolSizes)

	resp, err := n.client.Generate(ctx, llm.GenerateRequest{
		Model:  n.model,
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}
