// File: cmd/seed/main.go
// Seeds the database with users and starting credit balances for local
// development and end-to-end testing.
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"canvas-imagegen/internal/config"
	"canvas-imagegen/internal/domain/model"
	pg "canvas-imagegen/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	owners := flag.String("owners", "owner-1,owner-2", "comma-separated owner ids to create")
	credits := flag.Int("credits", 50, "starting credit balance per owner")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	users := pg.NewUserRepo(pool)
	for _, id := range strings.Split(*owners, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		u := &model.User{ID: id, Credits: *credits, RegisteredAt: time.Now()}
		if err := users.Save(ctx, nil, u); err != nil {
			log.Fatalf("seed user %s: %v", id, err)
		}
		log.Printf("seeded user %s with %d credits", id, *credits)
	}
}
