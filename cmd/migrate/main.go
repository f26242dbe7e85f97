package main

import (
	"context"
	"log"
	"path/filepath"

	"warnet/backend/internal/config"
	"warnet/backend/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		ctx := context.Background()
		pool, err := db.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer pool.Close()

		if err := db.RunPostgresMigrations(ctx, pool, filepath.Join(cfg.MigrationsDir, "postgres")); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	default:
		database, err := db.OpenSQLite(cfg.DBPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer database.Close()

		if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	}

	log.Println("migrations applied successfully")
}
