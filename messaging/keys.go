package messaging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/GraysonWills/Portfolio-sub001/models"
)

// GroupKey derives the queue session (ordering group) for an event from its
// source, so unrelated sources interleave independently. Events without a
// source share the fallback label.
func GroupKey(ev models.NormalizedEvent, defaultSource string) string {
	if ev.Source != "" {
		return ev.Source
	}
	return defaultSource
}

// DedupKey derives the deterministic deduplication key for an event at a
// batch-relative position. Two genuinely distinct events can carry identical
// fields, so the position is part of the key: same-millisecond duplicates in
// one publish call still get distinct keys.
func DedupKey(ev models.NormalizedEvent, index int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d", ev.EventType, ev.EventTime, ev.SessionID, ev.VisitorID, index)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
