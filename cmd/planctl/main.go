// planctl runs a single plan-orchestrator pass for one product and
// writes its artifacts to disk.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/littlebearapps/adops-intel/internal/cache"
	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/clustering"
	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/connector"
	"github.com/littlebearapps/adops-intel/internal/plan"
	"github.com/littlebearapps/adops-intel/internal/scoring"
	"github.com/littlebearapps/adops-intel/internal/storage"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	productPath := flag.String("product", "", "path to the product config YAML (required)")
	overridesPath := flag.String("overrides", "", "path to an overrides YAML (optional)")
	outputDir := flag.String("output-dir", getEnv("PLAN_OUTPUT_DIR", "./plans"), "root directory plan artifacts are written under")
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "directory to load a .env file from")
	flag.Parse()

	log := slog.Default()

	if *productPath == "" {
		log.Error("missing required -product flag")
		os.Exit(1)
	}

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	}

	cfg, err := config.Load(*productPath, *overridesPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	clk := clock.System{}
	ctx := context.Background()

	var quotaPersister cache.QuotaPersister
	var cachePersister cache.Persister
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		dbClient, err := storage.Open(ctx, storage.Config{
			Host:            dbHost,
			Port:            envInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        getEnv("DB_NAME", "adops_intel"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		})
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbClient.Close()
		cachePersister = storage.NewCacheLedgerRepository(dbClient.DB())
		quotaPersister = storage.NewCacheLedgerRepository(dbClient.DB())
		log.Info("connected to database", "host", dbHost)
	} else {
		log.Info("DB_HOST not set, running with in-memory cache and quota ledger only")
	}

	contentCache := cache.New(clk, cachePersister)
	quotaLedger := cache.NewQuotaLedger(clk, quotaPersister, map[string]int{
		"kwp": 1000,
		"gsc": 2000,
	})

	connectors := []connector.Connector{
		connector.NewGated(connector.NewEstimatedConnector(), contentCache, quotaLedger, 24*time.Hour, log),
	}

	scoringEngine := scoring.New(cfg.ScoringWeights, cfg.IntentDictionaries, cfg.SERPFeatureWeights, cfg.SourcePenalties)
	clusteringEngine := clustering.New(cfg.Product)

	engine := plan.New(cfg.Product, connectors, scoringEngine, clusteringEngine, nil, contentCache, quotaLedger, clk, log)

	result, err := engine.Run(ctx)
	if err != nil {
		log.Error("plan run failed", "error", err)
		os.Exit(1)
	}
	for _, w := range result.Summary.Warnings {
		log.Warn("plan degraded", "warning", w)
	}

	runDir := filepath.Join(*outputDir, cfg.Product.Name, result.Summary.Date)
	claims := plan.ClaimsValidationReport{GeneratedAt: result.Summary.Date}
	if err := plan.Emit(runDir, result, nil, claims); err != nil {
		log.Error("failed to write plan artifacts", "error", err)
		os.Exit(1)
	}

	log.Info("plan run complete",
		"product", cfg.Product.Name,
		"date", result.Summary.Date,
		"total_keywords", result.Summary.TotalKeywords,
		"total_ad_groups", result.Summary.TotalAdGroups,
		"output_dir", runDir,
	)
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}
