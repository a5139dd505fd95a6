package messaging

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/GraysonWills/Portfolio-sub001/config"
	"github.com/GraysonWills/Portfolio-sub001/models"
)

// RecordProcessor handles one batch of received queue records. Messages whose
// IDs appear in BatchItemFailures are returned to the queue for redelivery;
// everything else is acknowledged.
type RecordProcessor interface {
	Process(ctx context.Context, records []models.QueueRecord) models.ProcessResult
}

// Consumer drains the queue in batches and hands each batch to a processor.
// Retry and backoff belong to the queue's own visibility/dead-letter
// mechanism, so the consumer never re-runs a failed message itself.
type Consumer struct {
	client    *azservicebus.Client
	receiver  *azservicebus.Receiver
	processor RecordProcessor
	batchSize int
}

// NewConsumer creates a consumer for the configured queue.
//
// The queue must have sessions disabled. Published messages carry a SessionID
// so duplicate detection and per-source FIFO stay available if sessions are
// ever turned on, but this receiver is session-unaware: against a
// session-enabled queue ReceiveMessages fails and the worker exits. Archival
// partitioning is time-based, so ordering is not load-bearing here.
func NewConsumer(cfg config.Config, processor RecordProcessor) (*Consumer, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("queue connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	receiver, err := client.NewReceiverForQueue(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create receiver for queue %s", cfg.QueueName)
	}

	return &Consumer{
		client:    client,
		receiver:  receiver,
		processor: processor,
		batchSize: cfg.QueueBatchSize,
	}, nil
}

// Run receives and processes batches until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		messages, err := c.receiver.ReceiveMessages(ctx, c.batchSize, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}
		if len(messages) == 0 {
			continue
		}

		records := make([]models.QueueRecord, 0, len(messages))
		for _, msg := range messages {
			records = append(records, models.QueueRecord{
				MessageID: msg.MessageID,
				Body:      msg.Body,
			})
		}

		result := c.processor.Process(ctx, records)
		c.settle(ctx, messages, result)
	}
}

// settle acknowledges processed messages and abandons the failed ones so the
// queue redelivers only those.
func (c *Consumer) settle(ctx context.Context, messages []*azservicebus.ReceivedMessage, result models.ProcessResult) {
	failed := make(map[string]struct{}, len(result.BatchItemFailures))
	for _, id := range result.BatchItemFailures {
		failed[id] = struct{}{}
	}

	for _, msg := range messages {
		if _, ok := failed[msg.MessageID]; ok {
			if err := c.receiver.AbandonMessage(ctx, msg, nil); err != nil {
				log.Error().Err(err).Str("messageId", msg.MessageID).Msg("Failed to abandon message")
			}
			continue
		}
		if err := c.receiver.CompleteMessage(ctx, msg, nil); err != nil {
			log.Error().Err(err).Str("messageId", msg.MessageID).Msg("Failed to complete message")
		}
	}

	log.Info().
		Int("received", len(messages)).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("Settled queue batch")
}

// Close closes the receiver and the underlying client.
func (c *Consumer) Close() error {
	if c.receiver != nil {
		if err := c.receiver.Close(context.Background()); err != nil {
			return err
		}
	}
	if c.client != nil {
		return c.client.Close(context.Background())
	}
	return nil
}
