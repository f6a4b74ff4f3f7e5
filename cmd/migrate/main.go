package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"sqlzibar/internal/config"
	"sqlzibar/internal/observability"
	"sqlzibar/internal/schema"
	"sqlzibar/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, "sqlzibar-migrate")
	if err != nil {
		log.Fatalf("init tracer: %v", err)
	}
	defer shutdownTracer(ctx)

	db, err := storage.NewDB(ctx, cfg.DBURL, cfg.DBReadURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	tables := storage.NewTables(cfg.TableNames)
	manager := schema.NewManager(db, tables)

	if err := manager.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("schema migrations applied")

	if cfg.InitializeFunctions {
		if err := manager.DeployAccessibleFunction(ctx); err != nil {
			log.Fatalf("deploy fn_IsResourceAccessible: %v", err)
		}
		log.Println("fn_IsResourceAccessible deployed")
	}
}
