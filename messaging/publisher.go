package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/GraysonWills/Portfolio-sub001/config"
	"github.com/GraysonWills/Portfolio-sub001/models"
)

// PublishResult reports per-item outcomes of one publish call. Partial
// failure is expected and normal under load; it is never escalated to a
// failure of the whole call.
type PublishResult struct {
	Queued int
	Failed int
}

// Publisher enqueues normalized events to the durable work queue.
type Publisher interface {
	Publish(ctx context.Context, events []models.NormalizedEvent) (PublishResult, error)
	Close() error
}

// queueSender abstracts the two send operations the publish loop needs: an
// all-or-nothing batch send and a single-message send for isolating failures.
type queueSender interface {
	SendBatch(ctx context.Context, msgs []*azservicebus.Message) error
	Send(ctx context.Context, msg *azservicebus.Message) error
	Close(ctx context.Context) error
}

// serviceBusSender implements queueSender on an Azure Service Bus sender.
type serviceBusSender struct {
	sender *azservicebus.Sender
}

func (s *serviceBusSender) SendBatch(ctx context.Context, msgs []*azservicebus.Message) error {
	batch, err := s.sender.NewMessageBatch(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create message batch")
	}

	for _, msg := range msgs {
		if err := batch.AddMessage(msg, nil); err != nil {
			return errors.Wrap(err, "failed to add message to batch")
		}
	}

	return s.sender.SendMessageBatch(ctx, batch, nil)
}

func (s *serviceBusSender) Send(ctx context.Context, msg *azservicebus.Message) error {
	return s.sender.SendMessage(ctx, msg, nil)
}

func (s *serviceBusSender) Close(ctx context.Context) error {
	return s.sender.Close(ctx)
}

// ServiceBusPublisher implements Publisher on an Azure Service Bus queue.
type ServiceBusPublisher struct {
	client        *azservicebus.Client
	sender        queueSender
	queueName     string
	batchSize     int
	defaultSource string
	now           func() time.Time
}

// NewServiceBusPublisher creates a publisher for the configured queue.
func NewServiceBusPublisher(cfg config.Config) (*ServiceBusPublisher, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("queue connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create sender for queue %s", cfg.QueueName)
	}

	return &ServiceBusPublisher{
		client:        client,
		sender:        &serviceBusSender{sender: sender},
		queueName:     cfg.QueueName,
		batchSize:     cfg.QueueBatchSize,
		defaultSource: cfg.DefaultEventSource,
		now:           time.Now,
	}, nil
}

// Publish enqueues the events in chunks no larger than the queue's native
// batch limit. A failed chunk send falls back to per-message sends so that
// failures stay isolated per item; the result carries aggregate counts.
func (p *ServiceBusPublisher) Publish(ctx context.Context, events []models.NormalizedEvent) (PublishResult, error) {
	var res PublishResult

	for start := 0; start < len(events); start += p.batchSize {
		end := start + p.batchSize
		if end > len(events) {
			end = len(events)
		}

		msgs := make([]*azservicebus.Message, 0, end-start)
		for i, ev := range events[start:end] {
			// Dedup keys are indexed over the whole publish call, not the
			// chunk, so re-chunking never makes two events collide.
			msg, err := p.buildMessage(ev, start+i)
			if err != nil {
				res.Failed++
				log.Error().Err(err).Str("eventType", ev.EventType).Msg("Failed to build queue message")
				continue
			}
			msgs = append(msgs, msg)
		}

		if err := p.sender.SendBatch(ctx, msgs); err != nil {
			log.Warn().Err(err).Int("size", len(msgs)).Msg("Batch send failed, retrying messages individually")
			for _, msg := range msgs {
				if err := p.sender.Send(ctx, msg); err != nil {
					res.Failed++
					log.Error().Err(err).Str("messageId", *msg.MessageID).Msg("Failed to enqueue message")
					continue
				}
				res.Queued++
			}
			continue
		}
		res.Queued += len(msgs)
	}

	return res, nil
}

func (p *ServiceBusPublisher) buildMessage(ev models.NormalizedEvent, index int) (*azservicebus.Message, error) {
	envelope := models.QueueMessage{
		MessageType: models.MessageTypeClientEvent,
		CreatedAt:   p.now().UTC().Format(time.RFC3339),
		Event:       ev,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal queue message")
	}

	messageID := DedupKey(ev, index)
	sessionID := GroupKey(ev, p.defaultSource)

	return &azservicebus.Message{
		Body:      body,
		MessageID: &messageID,
		SessionID: &sessionID,
	}, nil
}

// Close closes the sender and the underlying client.
func (p *ServiceBusPublisher) Close() error {
	if p.sender != nil {
		if err := p.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(context.Background())
	}
	return nil
}
