package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GraysonWills/Portfolio-sub001/config"
	"github.com/GraysonWills/Portfolio-sub001/messaging"
	"github.com/GraysonWills/Portfolio-sub001/models"
	"github.com/GraysonWills/Portfolio-sub001/normalize"
)

// MockPublisher is a testify mock for the queue publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, events []models.NormalizedEvent) (messaging.PublishResult, error) {
	args := m.Called(ctx, events)
	return args.Get(0).(messaging.PublishResult), args.Error(1)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testConfig() config.Config {
	return config.Config{
		QueueEnabled:       true,
		QueueBatchSize:     10,
		IngestMaxBatchSize: 25,
		DefaultEventSource: "portfolio-web",
		IPHashSalt:         "test-salt",
	}
}

func newTestGateway(cfg config.Config, publisher messaging.Publisher) *Gateway {
	return NewGateway(cfg, normalize.NewNormalizer(normalize.DefaultMaxMetadataBytes), publisher)
}

func rawBatch(events ...string) []json.RawMessage {
	batch := make([]json.RawMessage, 0, len(events))
	for _, ev := range events {
		batch = append(batch, json.RawMessage(ev))
	}
	return batch
}

func TestIngestCountsRejectedEvents(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.AnythingOfType("[]models.NormalizedEvent")).
		Return(messaging.PublishResult{Queued: 1}, nil)

	gw := newTestGateway(testConfig(), publisher)
	result := gw.Ingest(context.Background(), rawBatch(
		`{"type":"page_view","route":"/blog"}`,
		`{"route":"/blog"}`,
	), models.RequestContext{IP: "203.0.113.7"})

	require.Equal(t, 1, result.Accepted)
	require.Equal(t, 1, result.Queued)
	require.Equal(t, 1, result.Rejected)
	require.Equal(t, 0, result.Failed)
	require.True(t, result.QueueEnabled)

	publisher.AssertExpectations(t)
}

func TestIngestTruncatesOversizedBatch(t *testing.T) {
	var published []models.NormalizedEvent
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.AnythingOfType("[]models.NormalizedEvent")).
		Run(func(args mock.Arguments) {
			published = args.Get(1).([]models.NormalizedEvent)
		}).
		Return(messaging.PublishResult{Queued: 25}, nil)

	batch := make([]json.RawMessage, 0, 30)
	for i := 0; i < 30; i++ {
		batch = append(batch, json.RawMessage(fmt.Sprintf(`{"type":"page_view","page":"p%d"}`, i)))
	}

	gw := newTestGateway(testConfig(), publisher)
	result := gw.Ingest(context.Background(), batch, models.RequestContext{})

	// Exactly 25 considered, 5 dropped without error
	require.Equal(t, 25, result.Accepted)
	require.Equal(t, 25, result.Queued)
	require.Equal(t, 0, result.Rejected)
	require.Len(t, published, 25)
}

func TestIngestSkipsQueueWhenNothingNormalizes(t *testing.T) {
	publisher := new(MockPublisher)

	gw := newTestGateway(testConfig(), publisher)
	result := gw.Ingest(context.Background(), rawBatch(`{}`, `{"type":""}`), models.RequestContext{})

	require.Equal(t, 0, result.Accepted)
	require.Equal(t, 0, result.Queued)
	require.Equal(t, 2, result.Rejected)

	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestIngestDegradesWhenQueueDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.QueueEnabled = false

	gw := newTestGateway(cfg, nil)
	result := gw.Ingest(context.Background(), rawBatch(`{"type":"page_view"}`), models.RequestContext{})

	require.Equal(t, 1, result.Accepted)
	require.Equal(t, 0, result.Queued)
	require.False(t, result.QueueEnabled)
	require.Equal(t, ReasonQueueDisabled, result.Reason)
}

func TestIngestReportsTransportFailureAsFailedCount(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).
		Return(messaging.PublishResult{}, errors.New("queue unreachable"))

	gw := newTestGateway(testConfig(), publisher)
	result := gw.Ingest(context.Background(), rawBatch(
		`{"type":"page_view"}`,
		`{"type":"click"}`,
	), models.RequestContext{})

	require.Equal(t, 2, result.Accepted)
	require.Equal(t, 0, result.Queued)
	require.Equal(t, 2, result.Failed)
}

func TestIngestAppliesPrivacyFilter(t *testing.T) {
	var published []models.NormalizedEvent
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(1).([]models.NormalizedEvent)
		}).
		Return(messaging.PublishResult{Queued: 1}, nil)

	cfg := testConfig()
	gw := newTestGateway(cfg, publisher)
	gw.Ingest(context.Background(), rawBatch(`{"type":"page_view"}`), models.RequestContext{
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0",
		Referrer:  "https://example.com/",
		Route:     "/blog",
	})

	require.Len(t, published, 1)
	ev := published[0]
	require.Len(t, ev.IPHash, 64)
	require.NotContains(t, ev.IPHash, "203.0.113.7")
	require.Equal(t, "/blog", ev.Route)
	require.Equal(t, "https://example.com/", ev.Referrer)
	require.Equal(t, "portfolio-web", ev.Source)
	require.NotEmpty(t, ev.ReceivedAt)

	// Capture disabled: the field must be absent from the record, not blank.
	require.Empty(t, ev.UserAgent)
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NotContains(t, string(data), "userAgent")
}

func TestIngestCapturesUserAgentWhenEnabled(t *testing.T) {
	var published []models.NormalizedEvent
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(1).([]models.NormalizedEvent)
		}).
		Return(messaging.PublishResult{Queued: 1}, nil)

	cfg := testConfig()
	cfg.CaptureUserAgent = true
	gw := newTestGateway(cfg, publisher)
	gw.Ingest(context.Background(), rawBatch(`{"type":"page_view"}`), models.RequestContext{
		UserAgent: "Mozilla/5.0",
	})

	require.Len(t, published, 1)
	require.Equal(t, "Mozilla/5.0", published[0].UserAgent)
}
