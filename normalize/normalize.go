package normalize

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GraysonWills/Portfolio-sub001/models"
)

// Per-field length caps. Values are capped, not rejected, to bound storage
// cost without losing the event.
const (
	MaxEventTypeLen = 80
	MaxRouteLen     = 512
	MaxPageLen      = 512
	MaxReferrerLen  = 512
	MaxSourceLen    = 64
	MaxSessionIDLen = 128
	MaxVisitorIDLen = 128
	MaxUserAgentLen = 512

	DefaultMaxMetadataBytes = 4096
)

// emptyMetadata is the value oversized or invalid metadata collapses to.
var emptyMetadata = json.RawMessage(`{}`)

// Normalizer validates and canonicalizes raw client events.
type Normalizer struct {
	maxMetadataBytes int
	now              func() time.Time
}

// NewNormalizer creates a Normalizer with the given metadata byte ceiling.
// A zero or negative ceiling falls back to the default.
func NewNormalizer(maxMetadataBytes int) *Normalizer {
	if maxMetadataBytes <= 0 {
		maxMetadataBytes = DefaultMaxMetadataBytes
	}
	return &Normalizer{
		maxMetadataBytes: maxMetadataBytes,
		now:              time.Now,
	}
}

// Normalize canonicalizes one raw event. It returns nil when the event must
// be dropped (unparsable payload or missing event type); it never returns an
// error, so a bad event can never fail the batch it arrived in.
func (n *Normalizer) Normalize(raw json.RawMessage) *models.NormalizedEvent {
	var ev models.RawClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil
	}

	eventType := SafeString(ev.Type, MaxEventTypeLen)
	if eventType == "" {
		return nil
	}

	eventTime := n.resolveEventTime(ev)
	date, hour := PartitionKey(eventTime)

	return &models.NormalizedEvent{
		EventType: eventType,
		EventTime: eventTime.Format(time.RFC3339),
		EventDate: date,
		EventHour: hour,
		Route:     SafeString(ev.Route, MaxRouteLen),
		Page:      SafeString(ev.Page, MaxPageLen),
		Source:    SafeString(ev.Source, MaxSourceLen),
		Referrer:  SafeString(ev.Referrer, MaxReferrerLen),
		SessionID: SafeString(ev.SessionID, MaxSessionIDLen),
		VisitorID: SafeString(ev.VisitorID, MaxVisitorIDLen),
		Metadata:  n.boundMetadata(ev.Metadata),
	}
}

// resolveEventTime tries the client-supplied timestamps in order and falls
// back to the capture time. A bad timestamp never rejects the event.
func (n *Normalizer) resolveEventTime(ev models.RawClientEvent) time.Time {
	for _, candidate := range []interface{}{ev.TS, ev.Timestamp, ev.EventTime} {
		if t, ok := parseClientTime(candidate); ok {
			return t.UTC()
		}
	}
	return n.now().UTC()
}

// parseClientTime accepts RFC3339 strings and unix epoch numbers (seconds or
// milliseconds, as JSON numbers decode to float64).
func parseClientTime(v interface{}) (time.Time, bool) {
	switch ts := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(ts)); err == nil {
			return t, true
		}
	case float64:
		if ts <= 0 {
			return time.Time{}, false
		}
		// Values past the year 33658 in seconds are epoch milliseconds.
		if ts > 1e12 {
			return time.UnixMilli(int64(ts)), true
		}
		return time.Unix(int64(ts), 0), true
	}
	return time.Time{}, false
}

// PartitionKey derives the (date, hour) archive partition from an event time.
func PartitionKey(t time.Time) (date string, hour string) {
	t = t.UTC()
	return t.Format("2006-01-02"), t.Format("15")
}

// SafeString trims and caps a string field. Empty values stay empty strings,
// never null, so downstream consumers can assume every field is present. The
// cap lands on a rune boundary so a truncated value is still valid UTF-8.
func SafeString(s string, max int) string {
	s = strings.TrimSpace(s)
	if max > 0 && len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// boundMetadata re-serializes metadata through a JSON round-trip and applies
// the byte ceiling. Anything invalid or oversized collapses to {}.
func (n *Normalizer) boundMetadata(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return emptyMetadata
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return emptyMetadata
	}

	out, err := json.Marshal(m)
	if err != nil || len(out) > n.maxMetadataBytes {
		return emptyMetadata
	}
	return out
}
