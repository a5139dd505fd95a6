package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/GraysonWills/Portfolio-sub001/api"
	"github.com/GraysonWills/Portfolio-sub001/ingest"
	"github.com/GraysonWills/Portfolio-sub001/messaging"
	"github.com/GraysonWills/Portfolio-sub001/normalize"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ingestion API server",
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting ingestion server")

	// Initialize queue publisher. The queue being disabled is a supported
	// deployment: the gateway then accepts events without enqueueing them.
	var publisher messaging.Publisher
	if cfg.QueueEnabled {
		p, err := messaging.NewServiceBusPublisher(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize queue publisher")
		}
		publisher = p
		defer func() {
			if err := p.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing queue publisher")
			}
		}()
	} else {
		log.Warn().Msg("Queue disabled, events will be accepted but not archived")
	}

	normalizer := normalize.NewNormalizer(normalize.DefaultMaxMetadataBytes)
	gateway := ingest.NewGateway(cfg, normalizer, publisher)

	server := api.NewServer(cfg, gateway)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
