package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/GraysonWills/Portfolio-sub001/models"
)

// ObjectStore is the archive sink. Writes are append-only: every Put targets
// a fresh key, so a redelivered batch produces a duplicate object rather than
// corrupting an existing one.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// partitionGroup collects the events of one (date, hour) partition together
// with the queue message IDs that contributed them.
type partitionGroup struct {
	date       string
	hour       string
	events     []models.NormalizedEvent
	messageIDs []string
}

// Processor archives batches of queue records as compressed, partitioned
// objects.
type Processor struct {
	store  ObjectStore
	prefix string
	now    func() time.Time
}

// NewProcessor creates a Processor writing under the given key prefix.
func NewProcessor(store ObjectStore, prefix string) *Processor {
	return &Processor{
		store:  store,
		prefix: prefix,
		now:    time.Now,
	}
}

// Process parses, groups, and archives one batch of queue records. A record
// that cannot be parsed, or a partition whose write fails, puts exactly its
// own message IDs into BatchItemFailures; the rest of the batch is
// acknowledged normally.
func (p *Processor) Process(ctx context.Context, records []models.QueueRecord) models.ProcessResult {
	var result models.ProcessResult

	groups := make(map[string]*partitionGroup)
	for _, record := range records {
		ev, err := parseRecord(record)
		if err != nil {
			log.Warn().Err(err).Str("messageId", record.MessageID).Msg("Dropping unparsable queue record")
			result.BatchItemFailures = append(result.BatchItemFailures, record.MessageID)
			continue
		}

		key := ev.EventDate + "/" + ev.EventHour
		group, ok := groups[key]
		if !ok {
			group = &partitionGroup{date: ev.EventDate, hour: ev.EventHour}
			groups[key] = group
		}
		group.events = append(group.events, *ev)
		group.messageIDs = append(group.messageIDs, record.MessageID)
	}

	// Partition writes are independent, so they run concurrently; the batch
	// still completes them all before reporting its result.
	ordered := make([]*partitionGroup, 0, len(groups))
	for _, group := range groups {
		ordered = append(ordered, group)
	}

	writeErrs := make([]error, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range ordered {
		i, group := i, group
		g.Go(func() error {
			writeErrs[i] = p.writeGroup(gctx, group)
			return nil
		})
	}
	_ = g.Wait()

	for i, group := range ordered {
		if writeErrs[i] != nil {
			log.Error().Err(writeErrs[i]).
				Str("date", group.date).
				Str("hour", group.hour).
				Int("events", len(group.events)).
				Msg("Failed to archive partition group")
			result.BatchItemFailures = append(result.BatchItemFailures, group.messageIDs...)
			continue
		}
		result.Processed += len(group.events)
	}

	result.Failed = len(result.BatchItemFailures)
	result.OK = result.Failed == 0
	return result
}

// writeGroup serializes one partition group to gzipped newline-delimited JSON
// and writes it under a unique key, so concurrent invocations never contend
// on the same object.
func (p *Processor) writeGroup(ctx context.Context, group *partitionGroup) error {
	data, err := encodeEvents(group.events)
	if err != nil {
		return err
	}

	key := p.objectKey(group.date, group.hour)
	if err := p.store.Put(ctx, key, data); err != nil {
		return err
	}

	log.Info().
		Str("key", key).
		Int("events", len(group.events)).
		Int("bytes", len(data)).
		Msg("Archived partition group")
	return nil
}

func (p *Processor) objectKey(date, hour string) string {
	return fmt.Sprintf("%sdt=%s/hr=%s/batch-%d-%s.json.gz",
		p.prefix, date, hour, p.now().UnixMilli(), uuid.New().String())
}

// encodeEvents serializes events as gzip-compressed newline-delimited JSON,
// one event per line.
func encodeEvents(events []models.NormalizedEvent) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)

	enc := json.NewEncoder(zw)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return nil, errors.Wrap(err, "failed to encode event")
		}
	}

	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish gzip stream")
	}
	return buf.Bytes(), nil
}

// parseRecord decodes one queue record body. Unknown message type
// discriminators are treated the same as parse failures: the specific record
// fails, the batch proceeds.
func parseRecord(record models.QueueRecord) (*models.NormalizedEvent, error) {
	var msg models.QueueMessage
	if err := json.Unmarshal(record.Body, &msg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal queue message")
	}

	if msg.MessageType != models.MessageTypeClientEvent {
		return nil, errors.Errorf("unrecognized message type %q", msg.MessageType)
	}

	return &msg.Event, nil
}
