// Command apikey issues an API key directly against the database, for
// operators bootstrapping the first credential before the HTTP endpoint is
// reachable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/provelab/pricing-prover/internal/config"
	"github.com/provelab/pricing-prover/internal/storage"
	"github.com/provelab/pricing-prover/shared/logger"
	"github.com/provelab/pricing-prover/shared/postgresql"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	name := flag.String("name", "", "Client name the key is issued to")
	flag.Parse()

	if *name == "" {
		return fmt.Errorf("name is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger := logger.NewDefault()

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	store := storage.NewPostgresStore(dbClient, appLogger.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := uuid.New().String()
	if err := store.InsertAPIKey(ctx, key, *name); err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}

	fmt.Printf("name: %s\napi_key: %s\n", *name, key)
	return nil
}
