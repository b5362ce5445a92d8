package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resonance-app/gamesync/internal/config"
	"github.com/resonance-app/gamesync/internal/gateway"
	"github.com/resonance-app/gamesync/internal/outcomes"
	"github.com/resonance-app/gamesync/internal/registry"
	"github.com/resonance-app/gamesync/internal/room"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	setupLogging()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var recorder room.OutcomeRecorder = outcomes.LogRecorder{}
	if cfg.NATS.Enabled {
		natsCfg := outcomes.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		natsRecorder, err := outcomes.NewNATSRecorder(natsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect outcome recorder")
		}
		defer natsRecorder.Close()
		recorder = natsRecorder
	}

	reg := registry.New()
	rooms := room.NewManager(cfg.RoomConfig(), clockwork.NewRealClock(), recorder)
	gw := gateway.New(gateway.DefaultConfig(), reg, rooms)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: c.Handler(gw.Router()),
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("game sync server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	rooms.Close()
	log.Info().Msg("shutdown complete")
}

func setupLogging() {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
