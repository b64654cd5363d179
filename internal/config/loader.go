package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values for optional configuration parameters.
const (
	DefaultLogLevel = "info"

	DefaultDBPath = "leadscout.db"

	DefaultGeminiModel       = "gemini-2.0-flash"
	DefaultGeminiTemperature = 0.5
	DefaultGeminiMaxRetries  = 2
	DefaultGeminiRetryDelay  = 5 // seconds

	DefaultMessagesLimit         = 1000
	DefaultMaxMessagesPerUser    = 5
	DefaultMessageMaxAgeDays     = 30
	DefaultHighActivityThreshold = 15
	DefaultHotMaxAgeDays         = 1
	DefaultWarmMaxAgeDays        = 3
	DefaultColdMaxAgeDays        = 7
	DefaultRequestDelayMinMs     = 500
	DefaultRequestDelayMaxMs     = 1500

	DefaultMinScore    = 5
	DefaultPenaltyMode = PenaltyModeZero

	DefaultPainBatchSize       = 10
	DefaultPainBatchDelayMinMs = 300
	DefaultPainBatchDelayMaxMs = 900
	DefaultTrendWindowDays     = 7

	DefaultReportDir = "./reports"
)

// LoadConfig loads configuration from the given YAML file, LEADSCOUT_*
// environment variables, and defaults, then validates the result.
// A missing config file is not an error; env vars and defaults apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", true)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("gemini.model_name", DefaultGeminiModel)
	v.SetDefault("gemini.temperature", DefaultGeminiTemperature)
	v.SetDefault("gemini.max_retries", DefaultGeminiMaxRetries)
	v.SetDefault("gemini.retry_delay_seconds", DefaultGeminiRetryDelay)

	v.SetDefault("parser.messages_limit", DefaultMessagesLimit)
	v.SetDefault("parser.max_messages_per_user", DefaultMaxMessagesPerUser)
	v.SetDefault("parser.message_max_age_days", DefaultMessageMaxAgeDays)
	v.SetDefault("parser.high_activity_threshold", DefaultHighActivityThreshold)
	v.SetDefault("parser.hot_max_age_days", DefaultHotMaxAgeDays)
	v.SetDefault("parser.warm_max_age_days", DefaultWarmMaxAgeDays)
	v.SetDefault("parser.cold_max_age_days", DefaultColdMaxAgeDays)
	v.SetDefault("parser.request_delay_min_ms", DefaultRequestDelayMinMs)
	v.SetDefault("parser.request_delay_max_ms", DefaultRequestDelayMaxMs)
	v.SetDefault("parser.use_batch_analysis", false)
	v.SetDefault("parser.only_with_channels", false)

	v.SetDefault("qualifier.min_score", DefaultMinScore)
	v.SetDefault("qualifier.penalty_mode", DefaultPenaltyMode)

	v.SetDefault("pains.enabled", true)
	v.SetDefault("pains.batch_size", DefaultPainBatchSize)
	v.SetDefault("pains.batch_delay_min_ms", DefaultPainBatchDelayMinMs)
	v.SetDefault("pains.batch_delay_max_ms", DefaultPainBatchDelayMaxMs)
	v.SetDefault("pains.trend_window_days", DefaultTrendWindowDays)

	v.SetDefault("report.output_dir", DefaultReportDir)
	v.SetDefault("report.formats", []string{"json", "md"})

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{})
}

// TrendWindow returns the recent-pain window used for cluster trend
// computation.
func (p PainsConfig) TrendWindow() time.Duration {
	return time.Duration(p.TrendWindowDays) * 24 * time.Hour
}
