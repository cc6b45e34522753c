package counter

import (
	"context"
	"strconv"

	"github.com/launchdeck/launchdeck/internal/pkg/cache"
)

const webhookOutcomesKey = "billing:counters:webhook_outcomes"

// Webhook outcome labels tracked in Redis. The counters are an operational
// signal only; losing them is acceptable.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// AddWebhookOutcome increments the counter for a webhook processing outcome.
func AddWebhookOutcome(outcome string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookOutcomesKey, outcome, 1).Err()
}

// WebhookOutcomes returns the current outcome counters.
func WebhookOutcomes() (map[string]int64, error) {
	ctx := context.Background()
	raw, err := cache.GetClient().HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(raw))
	for outcome, count := range raw {
		if v, err := strconv.ParseInt(count, 10, 64); err == nil {
			result[outcome] = v
		}
	}
	return result, nil
}
