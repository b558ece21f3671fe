package config

import "testing"

func TestLoadModelingDefaults(t *testing.T) {
	t.Setenv("FORECAST_MIN_HISTORY_DAYS", "")
	t.Setenv("FORECAST_MAX_HORIZON", "")
	t.Setenv("RECOMMEND_CF_WEIGHT", "")
	t.Setenv("RECOMMEND_CONTENT_WEIGHT", "")
	t.Setenv("VERSION_RETENTION", "")

	cfg := Load()
	if cfg.MinHistoryDays != 90 {
		t.Fatalf("expected default min history 90, got %d", cfg.MinHistoryDays)
	}
	if cfg.ForecastHorizon != 90 {
		t.Fatalf("expected default max horizon 90, got %d", cfg.ForecastHorizon)
	}
	if cfg.CFWeight != 0.6 || cfg.ContentWeight != 0.4 {
		t.Fatalf("expected default blend 0.6/0.4, got %v/%v", cfg.CFWeight, cfg.ContentWeight)
	}
	if cfg.VersionRetention != 10 {
		t.Fatalf("expected default retention 10, got %d", cfg.VersionRetention)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("FORECAST_MIN_HISTORY_DAYS", "30")
	t.Setenv("RECOMMEND_CF_WEIGHT", "0.8")
	t.Setenv("API_RATE_LIMIT_RPS", "50")
	t.Setenv("API_RATE_LIMIT_BURST", "100")
	t.Setenv("NATS_ENABLED", "true")

	cfg := Load()
	if cfg.MinHistoryDays != 30 {
		t.Fatalf("expected min history 30, got %d", cfg.MinHistoryDays)
	}
	if cfg.CFWeight != 0.8 {
		t.Fatalf("expected cf weight 0.8, got %v", cfg.CFWeight)
	}
	if cfg.APIRateLimitRPS != 50 || cfg.APIRateLimitBurst != 100 {
		t.Fatalf("expected rate limit override, got %v/%d", cfg.APIRateLimitRPS, cfg.APIRateLimitBurst)
	}
	if !cfg.NATSEnabled {
		t.Fatalf("expected NATS enabled")
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("FORECAST_BOOST_ROUNDS", "many")
	t.Setenv("QUALITY_MISSING_WARN_RATE", "one third")

	cfg := Load()
	if cfg.BoostRounds != 100 {
		t.Fatalf("expected fallback boost rounds 100, got %d", cfg.BoostRounds)
	}
	if cfg.MissingWarnRate != 0.30 {
		t.Fatalf("expected fallback warn rate 0.30, got %v", cfg.MissingWarnRate)
	}
}
