package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"app/internal/pubsub"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Notifier sends best-effort usage notifications. Delivery is
// fire-and-forget; failures are logged, never propagated.
type Notifier interface {
	LimitWarning(ctx context.Context, identityKey, planID, window string, used, limit int)
}

// LimitWarningEvent is the payload published for a usage warning.
type LimitWarningEvent struct {
	IdentityKey string    `json:"identity_key"`
	PlanID      string    `json:"plan_id"`
	Window      string    `json:"window"`
	Used        int       `json:"used"`
	Limit       int       `json:"limit"`
	At          time.Time `json:"at"`
}

// PubSubNotifier publishes warnings to a Pub/Sub topic the email pipeline
// consumes. A TTL'd dedup cache suppresses repeat warnings for the same
// identity and window within the suppression period. The cache is
// constructor-injected per instance, so suppression is process-local; a
// multi-instance deployment may still send duplicates from different
// instances.
type PubSubNotifier struct {
	publisher pubsub.Publisher
	topic     string
	dedup     *expirable.LRU[string, struct{}]
	logger    zerolog.Logger
}

// NewPubSubNotifier creates a notifier publishing to topic, suppressing
// duplicate warnings for dedupTTL.
func NewPubSubNotifier(publisher pubsub.Publisher, topic string, dedupMaxEntries int, dedupTTL time.Duration, logger zerolog.Logger) *PubSubNotifier {
	return &PubSubNotifier{
		publisher: publisher,
		topic:     topic,
		dedup:     expirable.NewLRU[string, struct{}](dedupMaxEntries, nil, dedupTTL),
		logger:    logger.With().Str("service", "Notifier").Logger(),
	}
}

// LimitWarning publishes a warning unless one was already sent for this
// identity and window within the dedup TTL.
func (n *PubSubNotifier) LimitWarning(ctx context.Context, identityKey, planID, window string, used, limit int) {
	dedupKey := fmt.Sprintf("%s|%s", identityKey, window)
	if _, seen := n.dedup.Get(dedupKey); seen {
		return
	}
	n.dedup.Add(dedupKey, struct{}{})

	payload, err := json.Marshal(LimitWarningEvent{
		IdentityKey: identityKey,
		PlanID:      planID,
		Window:      window,
		Used:        used,
		Limit:       limit,
		At:          time.Now().UTC(),
	})
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to marshal limit warning")
		return
	}
	if _, err := n.publisher.Publish(ctx, n.topic, payload); err != nil {
		n.logger.Error().Err(err).Str("identity_key", identityKey).Msg("Failed to publish limit warning")
	}
}

// NopNotifier discards all notifications. Used when no Pub/Sub project is
// configured.
type NopNotifier struct{}

func (NopNotifier) LimitWarning(context.Context, string, string, string, int, int) {}
