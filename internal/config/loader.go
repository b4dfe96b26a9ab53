// Package config loads every environment-tunable knob the pipeline needs:
// godotenv.Load() for local convenience, then os.Getenv with strconv parsing
// and a hardcoded default for anything unset. Nothing here fails hard on a
// bad value — it logs and falls back to the default instead of crashing.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/flowdesk/optionflow/internal/bus"
	"github.com/flowdesk/optionflow/internal/classifier"
	"github.com/flowdesk/optionflow/internal/darkflow"
)

// Config holds every runtime knob the pipeline needs.
type Config struct {
	ClusterWindowMs    int64
	OptionNBBOMaxAgeMs int64
	EquityQuoteMaxAgeMs int64
	RollingWindowSize  int
	RollingWindowTTL   time.Duration

	Classifier classifier.Thresholds
	Dark       darkflow.Thresholds

	BusURL          string
	StoreURL        string
	DeliverPolicy   bus.DeliverPolicy
	ConsumerReset   bool

	TelegramBotToken string
	TelegramChatID   int64

	MetricsAddr string
}

// Load reads .env (if present) then the process environment, filling in the
// hardcoded defaults for anything unset.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found. Relying on system environment variables.")
	}

	c := &Config{
		ClusterWindowMs:     getInt64("CLUSTER_WINDOW_MS", 500),
		OptionNBBOMaxAgeMs:  getInt64("OPTION_NBBO_MAX_AGE_MS", 2000),
		EquityQuoteMaxAgeMs: getInt64("EQUITY_QUOTE_MAX_AGE_MS", 2000),
		RollingWindowSize:   getInt("ROLLING_WINDOW_SIZE", 100),
		RollingWindowTTL:    time.Duration(getInt64("ROLLING_WINDOW_TTL_MS", 24*60*60*1000)) * time.Millisecond,

		BusURL:        getString("BUS_URL", "memory://"),
		StoreURL:      getString("STORE_URL", "memory://"),
		ConsumerReset: getBool("CONSUMER_RESET", false),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   getInt64("TELEGRAM_CHAT_ID", 0),

		MetricsAddr: getString("METRICS_ADDR", ":9090"),
	}

	policy, err := bus.ParseDeliverPolicy(getString("BUS_DELIVER_POLICY", "new"))
	if err != nil {
		log.Printf("⚠️ Unrecognized BUS_DELIVER_POLICY, defaulting to 'new': %v", err)
		policy = bus.DeliverNew
	}
	c.DeliverPolicy = policy

	c.Classifier = classifier.Thresholds{
		SweepMinCount:      getInt("SWEEP_MIN_COUNT", classifier.Default().SweepMinCount),
		SweepMinPremium:    getFloat("SWEEP_MIN_PREMIUM", classifier.Default().SweepMinPremium),
		SweepMinZ:          getFloat("SWEEP_MIN_Z", classifier.Default().SweepMinZ),
		ZMinSamples:        getInt("Z_MIN_SAMPLES", classifier.Default().ZMinSamples),
		SpikeMinSize:       getFloat("SPIKE_MIN_SIZE", classifier.Default().SpikeMinSize),
		SpikeMinPremium:    getFloat("SPIKE_MIN_PREMIUM", classifier.Default().SpikeMinPremium),
		SpikeMinZ:          getFloat("SPIKE_MIN_Z", classifier.Default().SpikeMinZ),
		SizeMinZ:           getFloat("SIZE_MIN_Z", classifier.Default().SizeMinZ),
		MinAggressiveRatio: getFloat("MIN_AGGRESSIVE_RATIO", classifier.Default().MinAggressiveRatio),
		MinCoverage:        getFloat("MIN_COVERAGE", classifier.Default().MinCoverage),
		FarDatedMinDTE:     getInt("FAR_DATED_MIN_DTE", classifier.Default().FarDatedMinDTE),
		ZeroDTEMaxATMPct:   getFloat("ZERO_DTE_MAX_ATM_PCT", classifier.Default().ZeroDTEMaxATMPct),
		ZeroDTEMinPremium:  getFloat("ZERO_DTE_MIN_PREMIUM", classifier.Default().ZeroDTEMinPremium),
		ZeroDTEMinSize:     getFloat("ZERO_DTE_MIN_SIZE", classifier.Default().ZeroDTEMinSize),
	}

	c.Dark = darkflow.Thresholds{
		MaxAgeMs:     getInt64("DARK_MAX_AGE_MS", darkflow.Default().MaxAgeMs),
		MaxSpreadPct: getFloat("DARK_MAX_SPREAD_PCT", darkflow.Default().MaxSpreadPct),
		MinBlockSize: getFloat("DARK_MIN_BLOCK_SIZE", darkflow.Default().MinBlockSize),
		MinPrintSize: getFloat("DARK_MIN_PRINT_SIZE", darkflow.Default().MinPrintSize),
		WindowMs:     getInt64("DARK_WINDOW_MS", darkflow.Default().WindowMs),
		MinCount:     getInt("DARK_MIN_COUNT", darkflow.Default().MinCount),
		MinSize:      getFloat("DARK_MIN_SIZE", darkflow.Default().MinSize),
		CooldownMs:   getInt64("DARK_COOLDOWN_MS", darkflow.Default().CooldownMs),
		MaxEvidence:  getInt("DARK_MAX_EVIDENCE", darkflow.Default().MaxEvidence),
	}

	return c
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️ Invalid bool for %s=%q, using default %v", key, v, def)
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ Invalid int for %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("⚠️ Invalid int for %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("⚠️ Invalid float for %s=%q, using default %v", key, v, def)
		return def
	}
	return f
}
