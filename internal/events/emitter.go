// Package events builds and publishes domain events. Every state
// transition in the core emits exactly one event carrying enough fields to
// reconstruct the entity delta.
package events

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/infrabond/core/internal/domain"
)

// Emitter appends events to the durable event log and publishes them on
// the bus. Emission happens after the state change has committed; failures
// are logged, never propagated back into the transaction.
type Emitter struct {
	store  domain.EventStore
	bus    domain.EventBus
	clock  domain.Clock
	logger *slog.Logger
}

// NewEmitter creates an Emitter. store and bus may be nil (disabled).
func NewEmitter(store domain.EventStore, bus domain.EventBus, logger *slog.Logger) *Emitter {
	return &Emitter{
		store:  store,
		bus:    bus,
		clock:  time.Now,
		logger: logger.With(slog.String("component", "events")),
	}
}

// Emit constructs and dispatches one event.
func (e *Emitter) Emit(ctx context.Context, eventType, projectID, marketID string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	ev := domain.Event{
		ID:        eventID(eventType, payload),
		Type:      eventType,
		ProjectID: projectID,
		MarketID:  marketID,
		Payload:   payload,
		CreatedAt: e.clock().UTC(),
	}
	if e.store != nil {
		if err := e.store.Insert(ctx, ev); err != nil {
			e.logger.ErrorContext(ctx, "event log insert failed",
				slog.String("type", eventType), slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		if err := e.bus.Publish(ctx, ev); err != nil {
			e.logger.WarnContext(ctx, "event publish failed",
				slog.String("type", eventType), slog.String("error", err.Error()))
		}
	}
}

// eventID is the hex keccak-256 digest of the event type, a fresh nonce,
// and the canonical JSON payload. The nonce keeps replayed payloads
// distinct in the log.
func eventID(eventType string, payload map[string]any) string {
	body, _ := json.Marshal(payload)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(eventType))
	h.Write([]byte(uuid.NewString()))
	h.Write(body)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
