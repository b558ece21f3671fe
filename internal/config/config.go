package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	NATSEnabled bool
	NATSURL     string
	NATSSubject string

	SheetAliasFile   string
	VersionRetention int
	MaxUploadMB      int
	MaxSheets        int

	MissingWarnRate  float64
	MissingBlockRate float64

	MinHistoryDays    int
	ForecastHorizon   int
	BoostRounds       int
	BoostLearningRate float64

	CFWeight         float64
	ContentWeight    float64
	TopNeighbors     int
	RecommendTopK    int
	RecommendMaxTopK int

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int

	MonitorMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		NATSEnabled: mustEnvBool("NATS_ENABLED", false),
		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "training.events"),

		SheetAliasFile:   mustEnv("SHEET_ALIAS_FILE", ""),
		VersionRetention: mustEnvInt("VERSION_RETENTION", 10),
		MaxUploadMB:      mustEnvInt("MAX_UPLOAD_MB", 64),
		MaxSheets:        mustEnvInt("MAX_SHEETS", 20),

		MissingWarnRate:  mustEnvFloat("QUALITY_MISSING_WARN_RATE", 0.30),
		MissingBlockRate: mustEnvFloat("QUALITY_MISSING_BLOCK_RATE", 0.60),

		MinHistoryDays:    mustEnvInt("FORECAST_MIN_HISTORY_DAYS", 90),
		ForecastHorizon:   mustEnvInt("FORECAST_MAX_HORIZON", 90),
		BoostRounds:       mustEnvInt("FORECAST_BOOST_ROUNDS", 100),
		BoostLearningRate: mustEnvFloat("FORECAST_BOOST_LEARNING_RATE", 0.1),

		CFWeight:         mustEnvFloat("RECOMMEND_CF_WEIGHT", 0.6),
		ContentWeight:    mustEnvFloat("RECOMMEND_CONTENT_WEIGHT", 0.4),
		TopNeighbors:     mustEnvInt("RECOMMEND_TOP_NEIGHBORS", 20),
		RecommendTopK:    mustEnvInt("RECOMMEND_DEFAULT_TOP_K", 10),
		RecommendMaxTopK: mustEnvInt("RECOMMEND_MAX_TOP_K", 100),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", 0),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 100),

		MonitorMetricsPort: mustEnv("MONITOR_METRICS_PORT", "9090"),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
