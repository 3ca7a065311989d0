package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flipmatch/flipmatch/internal/broadcast"
	"github.com/flipmatch/flipmatch/internal/config"
	"github.com/flipmatch/flipmatch/internal/game"
	"github.com/flipmatch/flipmatch/internal/gateway"
	"github.com/flipmatch/flipmatch/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster, err := broadcast.ConnectNATS(broadcast.NATSConfig{
		URL:           cfg.NATS.URL,
		Name:          "flipmatch",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("failed to connect to NATS")
	}
	defer broadcaster.Close()

	gameStore, err := buildStore(ctx, cfg, broadcaster)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build game store")
	}

	app := game.NewApp(gameStore, broadcaster)
	authorizer := gateway.NewHMACAuthorizer(cfg.Auth.Key, cfg.Auth.Secret)

	svc := gateway.NewService(gateway.DefaultConfig(), app, broadcaster, authorizer)
	go svc.Start(ctx)

	server := gateway.NewServer(cfg.Server.Port, svc)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

func buildStore(ctx context.Context, cfg *config.Config, broadcaster *broadcast.NATSBroadcaster) (store.GameStore, error) {
	switch cfg.Store.Backend {
	case "nats":
		js, err := jetstream.New(broadcaster.Conn())
		if err != nil {
			return nil, err
		}
		kvCfg := store.DefaultKVConfig()
		kvCfg.TTL = cfg.Store.TTL
		return store.NewKVStore(ctx, js, kvCfg)
	default:
		var opts []store.MemoryOption
		if cfg.Store.TTL > 0 {
			opts = append(opts, store.WithTTL(cfg.Store.TTL))
		}
		ms := store.NewMemoryStore(opts...)
		ms.StartJanitor(ctx, time.Minute)
		return ms, nil
	}
}
