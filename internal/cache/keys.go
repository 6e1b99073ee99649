package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// CounterKey builds the key for one per-minute counter bucket.
// Pattern: alert:counter:{project}:{requests|errors}:{minuteEpoch}
func CounterKey(projectID uuid.UUID, metric string, minute int64) string {
	return fmt.Sprintf("alert:counter:%s:%s:%d", projectID, metric, minute)
}

// CooldownKey builds the key for an alert rule's cooldown token.
func CooldownKey(ruleID uuid.UUID) string {
	return fmt.Sprintf("alert:cooldown:%s", ruleID)
}

// SchedulerLockKey builds the key for a scheduler cycle lock.
func SchedulerLockKey(family string) string {
	return fmt.Sprintf("alert:scheduler:lock:%s", family)
}

// RateLimitKey builds the key for API-key rate limiting.
func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
