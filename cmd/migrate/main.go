package main

// Run database migrations:
//   go run ./cmd/migrate [up|status|down]

import (
	"context"
	"log"
	"os"

	"menuscore-backend/internal/shared/config"
	"menuscore-backend/internal/shared/storage/db"
	"menuscore-backend/internal/shared/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if _, err := telemetry.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("logger: %v", err)
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx := context.Background()
	opts := db.DefaultMigrateOptions().Merge(db.Options{PingTimeout: cfg.Database.PingTimeout})
	sqlDB, err := db.Connect(ctx, cfg.Database.URL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	switch command {
	case "up":
		err = db.RunMigrations(ctx, sqlDB)
	case "status":
		err = db.MigrationStatus(ctx, sqlDB)
	case "down":
		err = db.RollbackLast(ctx, sqlDB)
	default:
		log.Printf("unknown command %q, expected up, status or down", command)
		os.Exit(2)
	}
	if err != nil {
		log.Printf("migrate %s failed: %v", command, err)
		os.Exit(1)
	}
}
