package main

import (
	"context"

	"github.com/Toumari/NorthStar/app"
	"github.com/Toumari/NorthStar/app/config"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	app.SetupLogging(cfg.Logs)

	server, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server")
	}
	defer server.Close()

	router := app.NewRouter(server)
	log.Info().Str("port", cfg.Port).Msg("listening")
	if err := router.Run("0.0.0.0:" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
