package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/altbit/internal/admin"
	"github.com/danmuck/altbit/internal/config"
	"github.com/danmuck/altbit/internal/logging"
	"github.com/danmuck/altbit/internal/peer"
	"github.com/danmuck/altbit/internal/protocol/arq"
	"github.com/danmuck/altbit/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/altnode/config.toml", "node config path")
	flag.Parse()

	logging.ConfigureRuntime()
	cfg, err := config.LoadNodeConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load node config")
	}
	log.Info().Str("path", *configPath).Str("role", cfg.Role).Msg("loaded node config")

	node, err := peer.New(peer.Config{
		Name:   cfg.Name,
		Role:   cfg.Role,
		Listen: cfg.Listen,
		Peer:   cfg.Peer,
		ARQ: arq.Config{
			RetransmitTimeout: cfg.Timeout(),
			Limits:            frame.Limits{MaxPayloadBytes: cfg.MaxPayloadBytes},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start node")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := admin.New(node, cfg.AdminAddr, cfg.CorsOrigins)
	go func() {
		if err := server.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("admin server stopped")
			stop()
		}
	}()

	log.Info().
		Str("node", cfg.Name).
		Str("udp", node.LocalAddr().String()).
		Str("admin", cfg.AdminAddr).
		Msg("node started")
	if err := node.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("node stopped")
	}
}
