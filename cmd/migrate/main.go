package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"tenantauth.org/internal/config"
	"tenantauth.org/internal/migrate"
	"tenantauth.org/internal/obs"
	"tenantauth.org/internal/store/pg"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config.yaml")
		dsn        = flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
		seedsPath  = flag.String("seeds", "", "Directory with SQL seed files")
	)
	flag.Parse()

	logger, err := obs.NewLogger("info", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if len(flag.Args()) == 0 {
		logger.Fatal("usage: migrate [-config path] [-dsn dsn] up|down|seed|status")
	}
	if *dsn == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
		*dsn = cfg.Database.DSN
	}
	if *dsn == "" {
		logger.Fatal("missing DSN: provide -dsn, database.dsn or TENANTAUTH_DATABASE_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer store.Close()

	var opts []migrate.Option
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seedsPath)))
	}
	mgr := migrate.NewManager(store.DB(), migrate.Migrations(), opts...)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			logger.Info("applied", zap.String("migration", name))
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			logger.Info("rolled back", zap.String("migration", name))
		}
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		logger.Fatal("unknown command", zap.String("command", cmd))
	}
	if err != nil {
		logger.Fatal("migrate failed", zap.String("command", cmd), zap.Error(err))
	}
}
