package widget

import (
	"time"

	"chat-sync-engine/internal/env"
)

// Defaults for the tuning knobs a shell can override via CHAT_* env vars.
const (
	DefaultPollInterval          = 10 * time.Second
	DefaultMaxReconnectAttempts  = 3
	DefaultHistoryPageSize       = 20
	DefaultNearBottomThresholdPx = 50
)

// ConfigFromEnv builds a Config from the CHAT_* tuning knobs, falling back
// to the defaults for anything unset or unparseable.
func ConfigFromEnv(source string) Config {
	pollMs := env.GetIntOrDefault(env.PollIntervalMs, int(DefaultPollInterval/time.Millisecond))
	return Config{
		Source:                source,
		PollInterval:          time.Duration(pollMs) * time.Millisecond,
		MaxReconnectAttempts:  env.GetIntOrDefault(env.MaxReconnectAttempts, DefaultMaxReconnectAttempts),
		HistoryPageSize:       env.GetIntOrDefault(env.HistoryPageSize, DefaultHistoryPageSize),
		NearBottomThresholdPx: env.GetIntOrDefault(env.NearBottomThresholdPx, DefaultNearBottomThresholdPx),
		InitialLoadLimit:      env.GetIntOrDefault(env.InitialLoadLimit, DefaultInitialLoadLimit),
	}
}
