package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"sqlzibar/internal/config"
	"sqlzibar/internal/observability"
	"sqlzibar/internal/seed"
	"sqlzibar/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, "sqlzibar-seed")
	if err != nil {
		log.Fatalf("init tracer: %v", err)
	}
	defer shutdownTracer(ctx)

	if !cfg.SeedCoreData {
		log.Println("SQLZIBAR_SEED_CORE_DATA=false, skipping")
		return
	}

	db, err := storage.NewDB(ctx, cfg.DBURL, cfg.DBReadURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	tables := storage.NewTables(cfg.TableNames)
	seeder := seed.NewCoreSeeder(db, tables)

	err = seeder.Run(ctx, seed.Config{
		RootResourceID:   cfg.RootResourceID,
		RootResourceName: cfg.RootResourceName,
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	log.Printf("core data seeded (root=%s, system-admin=%s)", cfg.RootResourceID, seed.SystemAdminPrincipal)
}
