package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/GraysonWills/Portfolio-sub001/archive"
	"github.com/GraysonWills/Portfolio-sub001/messaging"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the archive worker",
	Long:  `Start the background worker that drains the event queue and writes partitioned archives`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting archive worker")

	// The archive store is the worker's only purpose, so unlike the
	// ingestion side there is no degraded mode without it.
	if !cfg.ArchiveConfigured() {
		return errors.New("archive storage is not configured")
	}

	store, err := archive.NewBlobStore(cfg.ArchiveConnStr, cfg.ArchiveContainer)
	if err != nil {
		return err
	}

	processor := archive.NewProcessor(store, cfg.ArchivePrefix)

	consumer, err := messaging.NewConsumer(cfg, processor)
	if err != nil {
		return err
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing queue consumer")
		}
	}()

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("queue", cfg.QueueName).Msg("Starting queue consumer")
		return consumer.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
