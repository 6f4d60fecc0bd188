package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"dispense/internal/config"
	"dispense/internal/db"
)

func main() {
	path := os.Getenv("DISPENSE_CONFIG")
	if path == "" {
		path = "dispsrv.conf"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	database, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	applied, err := db.Migrate(context.Background(), database)
	if err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	for _, name := range applied {
		fmt.Printf("applied %s\n", name)
	}
	if len(applied) == 0 {
		fmt.Println("database is up to date")
	}
}
