package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/seed"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	opts, err := seed.ParseOptions(os.Args[1:])
	if err != nil {
		log.Fatalf("flags error: %v", err)
	}

	accounts, err := opts.Accounts(os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)
	storage, err := server.OpenStorage(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer storage.Close()

	users := services.NewUserService(storage.Tx, storage.Repos, auth.NewPasswordHasher(cfg.BcryptCost), logger)
	n, err := seed.NewSeeder(users, os.Stdout).Seed(ctx, accounts)
	if err != nil {
		log.Printf("%v", err)
		return
	}
	log.Printf("seed completed, %d user(s) created", n)

}
