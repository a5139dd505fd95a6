package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GraysonWills/Portfolio-sub001/config"
	"github.com/GraysonWills/Portfolio-sub001/messaging"
	"github.com/GraysonWills/Portfolio-sub001/models"
	"github.com/GraysonWills/Portfolio-sub001/normalize"
	"github.com/GraysonWills/Portfolio-sub001/privacy"
)

// ReasonQueueDisabled is reported when events were accepted but the queue is
// not configured. Ingestion is a fire-and-forget telemetry path: archival
// being disabled is not a caller error.
const ReasonQueueDisabled = "queue_disabled"

// Gateway validates, redacts, and enqueues batches of raw client events. It
// is request-scoped and stateless; configuration is read-only after startup.
type Gateway struct {
	cfg        config.Config
	normalizer *normalize.Normalizer
	publisher  messaging.Publisher
	now        func() time.Time
}

// NewGateway creates a Gateway. The publisher may be nil when the queue is
// disabled; ingestion then degrades to counting events without enqueueing.
func NewGateway(cfg config.Config, normalizer *normalize.Normalizer, publisher messaging.Publisher) *Gateway {
	return &Gateway{
		cfg:        cfg,
		normalizer: normalizer,
		publisher:  publisher,
		now:        time.Now,
	}
}

// Ingest processes one batch of raw events. The batch is truncated to the
// configured cap, each event is normalized and redacted independently, and
// the surviving set is handed to the publisher. The caller always gets a
// result, never an error: nothing downstream of the normalizer may fail the
// user-facing site.
func (g *Gateway) Ingest(ctx context.Context, rawEvents []json.RawMessage, rc models.RequestContext) models.IngestResult {
	result := models.IngestResult{QueueEnabled: g.queueEnabled()}

	// Events past the cap are silently dropped; the client re-batches on its
	// own cadence.
	if len(rawEvents) > g.cfg.IngestMaxBatchSize {
		rawEvents = rawEvents[:g.cfg.IngestMaxBatchSize]
	}

	normalized := make([]models.NormalizedEvent, 0, len(rawEvents))
	for _, raw := range rawEvents {
		ev := g.normalizer.Normalize(raw)
		if ev == nil {
			result.Rejected++
			continue
		}
		g.decorate(ev, rc)
		normalized = append(normalized, *ev)
	}

	result.Accepted = len(normalized)
	if result.Accepted == 0 {
		return result
	}

	if !result.QueueEnabled {
		result.Reason = ReasonQueueDisabled
		return result
	}

	pr, err := g.publisher.Publish(ctx, normalized)
	if err != nil {
		// Transport failure: the whole set is reported as failed and the
		// caller decides whether to retry or drop.
		log.Warn().Err(err).Int("events", len(normalized)).Msg("Failed to publish event batch")
		result.Failed = len(normalized)
		return result
	}

	result.Queued = pr.Queued
	result.Failed = pr.Failed
	return result
}

// decorate fills the request-derived fields of a normalized event: the salted
// IP hash, fallbacks for route/referrer/source, the optional user agent, and
// the server-side enqueue time.
func (g *Gateway) decorate(ev *models.NormalizedEvent, rc models.RequestContext) {
	ev.IPHash = privacy.HashIP(g.cfg.IPHashSalt, rc.IP)

	if ev.Route == "" {
		ev.Route = normalize.SafeString(rc.Route, normalize.MaxRouteLen)
	}
	if ev.Referrer == "" {
		ev.Referrer = normalize.SafeString(rc.Referrer, normalize.MaxReferrerLen)
	}
	if ev.Source == "" {
		ev.Source = g.cfg.DefaultEventSource
	}

	// When capture is disabled the field stays zero-valued and is omitted
	// from the serialized record entirely, not merely blanked.
	if g.cfg.CaptureUserAgent {
		ev.UserAgent = normalize.SafeString(rc.UserAgent, normalize.MaxUserAgentLen)
	}

	ev.ReceivedAt = g.now().UTC().Format(time.RFC3339)
}

func (g *Gateway) queueEnabled() bool {
	return g.cfg.QueueEnabled && g.publisher != nil
}
