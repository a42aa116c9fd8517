package cache

import (
	"strings"
	"time"
)

// Queue keys are owned by the upstream collector; their names are part of the
// shared contract and are NOT namespaced.
const (
	QueuePendingKey    = "queue:threads:pending"
	QueueProcessingKey = "queue:threads:processing"
	QueueCompletedKey  = "queue:threads:completed"
	QueueFailedKey     = "queue:threads:failed"
	QueueDeadLetterKey = "queue:threads:dead_letter"
	QueueScheduledKey  = "queue:scheduled"
)

// ConfigPrefix is the hash-key prefix for dashboard-editable runtime config.
const ConfigPrefix = "config:trading:"

// Namespace prefixes keys owned by this process (market data cache).
const Namespace = "odte"

// ScheduledDataKey holds the context blob for a delayed reanalysis.
func ScheduledDataKey(threadID string) string {
	return "scheduled:data:" + threadID
}

// ScheduledDataTTL bounds how long a reanalysis context survives unclaimed.
func ScheduledDataTTL() time.Duration {
	return 24 * time.Hour
}

// ConfigKey returns the runtime config key for the given option name.
func ConfigKey(option string) string {
	return ConfigPrefix + option
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Market data cache ------------------------------------------------------

// VIXKey caches the latest VIX reading.
func VIXKey() string {
	return formatKey("market", "vix")
}

// UnderlyingPriceKey caches the latest underlying price per symbol.
func UnderlyingPriceKey(symbol string) string {
	return formatKey("market", "px", strings.ToUpper(symbol))
}

// OptionChainKey caches an option chain snapshot per symbol and expiry.
func OptionChainKey(symbol, expiry string) string {
	return formatKey("market", "chain", strings.ToUpper(symbol), expiry)
}

// VIXTTL keeps VIX fresh enough for the precondition ceiling check.
func VIXTTL() time.Duration {
	return 30 * time.Second
}

// UnderlyingPriceTTL is short: 0DTE entries are price-sensitive.
func UnderlyingPriceTTL() time.Duration {
	return 10 * time.Second
}

// OptionChainTTL keeps chains warm across a reanalysis burst without serving
// stale quotes into a fresh decision.
func OptionChainTTL() time.Duration {
	return 20 * time.Second
}
