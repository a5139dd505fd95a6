package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/GraysonWills/Portfolio-sub001/models"
)

// fakeStore is an in-memory ObjectStore that can fail writes whose key
// contains a given substring.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOn != "" && strings.Contains(key, f.failOn) {
		return errors.New("store unavailable")
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}

func record(t *testing.T, messageID string, ev models.NormalizedEvent) models.QueueRecord {
	t.Helper()

	body, err := json.Marshal(models.QueueMessage{
		MessageType: models.MessageTypeClientEvent,
		CreatedAt:   "2025-01-01T14:30:05Z",
		Event:       ev,
	})
	require.NoError(t, err)

	return models.QueueRecord{MessageID: messageID, Body: body}
}

func event(eventType, date, hour string) models.NormalizedEvent {
	return models.NormalizedEvent{
		EventType: eventType,
		EventTime: date + "T" + hour + ":30:00Z",
		EventDate: date,
		EventHour: hour,
		Metadata:  json.RawMessage(`{}`),
	}
}

func decodeArchive(t *testing.T, data []byte) []models.NormalizedEvent {
	t.Helper()

	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()

	var events []models.NormalizedEvent
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var ev models.NormalizedEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestProcessMarksUnparsableRecordOnly(t *testing.T) {
	store := newFakeStore()
	p := NewProcessor(store, "events/")

	records := []models.QueueRecord{
		record(t, "m1", event("page_view", "2025-01-01", "14")),
		{MessageID: "m2", Body: []byte("{{ not json")},
		record(t, "m3", event("click", "2025-01-01", "14")),
	}

	result := p.Process(context.Background(), records)

	require.False(t, result.OK)
	require.Equal(t, 2, result.Processed)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, []string{"m2"}, result.BatchItemFailures)
}

func TestProcessRejectsUnknownMessageType(t *testing.T) {
	store := newFakeStore()
	p := NewProcessor(store, "events/")

	body, err := json.Marshal(models.QueueMessage{MessageType: "subscription_confirmed"})
	require.NoError(t, err)

	result := p.Process(context.Background(), []models.QueueRecord{
		{MessageID: "m1", Body: body},
		record(t, "m2", event("page_view", "2025-01-01", "14")),
	})

	require.Equal(t, 1, result.Processed)
	require.Equal(t, []string{"m1"}, result.BatchItemFailures)
}

func TestProcessGroupsByPartition(t *testing.T) {
	store := newFakeStore()
	p := NewProcessor(store, "events/")

	result := p.Process(context.Background(), []models.QueueRecord{
		record(t, "m1", event("page_view", "2025-01-01", "14")),
		record(t, "m2", event("click", "2025-01-01", "14")),
		record(t, "m3", event("page_view", "2025-01-01", "15")),
		record(t, "m4", event("page_view", "2025-01-02", "03")),
	})

	require.True(t, result.OK)
	require.Equal(t, 4, result.Processed)
	require.Empty(t, result.BatchItemFailures)

	keys := store.keys()
	require.Len(t, keys, 3)
	for _, key := range keys {
		require.Regexp(t, `^events/dt=\d{4}-\d{2}-\d{2}/hr=\d{2}/batch-\d+-[0-9a-f-]+\.json\.gz$`, key)
	}
}

func TestProcessFailedWriteMapsToContributingMessages(t *testing.T) {
	store := newFakeStore()
	store.failOn = "hr=14"
	p := NewProcessor(store, "events/")

	result := p.Process(context.Background(), []models.QueueRecord{
		record(t, "m1", event("page_view", "2025-01-01", "14")),
		record(t, "m2", event("click", "2025-01-01", "14")),
		record(t, "m3", event("page_view", "2025-01-01", "15")),
	})

	require.False(t, result.OK)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 2, result.Failed)
	require.ElementsMatch(t, []string{"m1", "m2"}, result.BatchItemFailures)
}

func TestArchiveRoundTrip(t *testing.T) {
	store := newFakeStore()
	p := NewProcessor(store, "events/")

	sent := []models.NormalizedEvent{
		event("page_view", "2025-01-01", "14"),
		event("click", "2025-01-01", "14"),
		event("scroll", "2025-01-01", "14"),
	}

	records := make([]models.QueueRecord, 0, len(sent))
	for i, ev := range sent {
		records = append(records, record(t, string(rune('a'+i)), ev))
	}

	result := p.Process(context.Background(), records)
	require.True(t, result.OK)

	keys := store.keys()
	require.Len(t, keys, 1)

	got := decodeArchive(t, store.objects[keys[0]])
	require.ElementsMatch(t, sent, got)
}
