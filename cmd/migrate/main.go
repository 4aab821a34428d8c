package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"reelsmith/internal/db"
	"reelsmith/internal/infra"
)

func main() {
	_ = godotenv.Load()

	path := flag.String("path", "migrations", "directory with migration files")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	command := "up"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "up":
		if err := db.Up(cfg.DatabaseURL, *path); err != nil {
			logger.Fatal().Err(err).Msg("migrate up failed")
		}
		logger.Info().Msg("migrations applied")
	case "down":
		if err := db.Down(cfg.DatabaseURL, *path); err != nil {
			logger.Fatal().Err(err).Msg("migrate down failed")
		}
		logger.Info().Msg("migration rolled back")
	case "version":
		version, dirty, err := db.Version(cfg.DatabaseURL, *path)
		if err != nil {
			logger.Fatal().Err(err).Msg("read version failed")
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
	default:
		fmt.Fprintf(os.Stderr, "usage: migrate [-path dir] [up|down|version]\n")
		os.Exit(2)
	}
}
