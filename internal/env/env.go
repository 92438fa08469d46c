package env

import (
	"os"
	"strconv"
)

const (
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	WidgetSecretKey  = "WIDGET_SECRET"
	AgentSecretKey   = "AGENT_SECRET"
	ChatRedisURL     = "CHAT_REDIS_URL"
	ChatRedisPass    = "CHAT_REDIS_PASS"
	WebUrl           = "WEB_URL"

	// Sync engine tuning knobs, all optional.
	PollIntervalMs        = "CHAT_POLL_INTERVAL_MS"
	MaxReconnectAttempts  = "CHAT_MAX_RECONNECT_ATTEMPTS"
	HistoryPageSize       = "CHAT_HISTORY_PAGE_SIZE"
	NearBottomThresholdPx = "CHAT_NEAR_BOTTOM_THRESHOLD_PX"
	InitialLoadLimit      = "CHAT_INITIAL_LOAD_LIMIT"
)

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func GetIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}

// MustValidate is called from the binaries at startup; library packages never
// panic on missing configuration themselves.
func MustValidate() {
	required := []string{
		AWSRegion,
		AWSID,
		AWSSecret,
		WidgetSecretKey,
		ChatRedisURL,
		WebUrl,
	}
	for _, key := range required {
		if os.Getenv(key) == "" {
			panic("env: required environment variable not set: " + key)
		}
	}
}
