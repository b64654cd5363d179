// Package config provides configuration loading, validation, and management
// for the LeadScout application. It handles reading from YAML files,
// environment variables, setting default values, and validating
// configuration parameters.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration indicates a configuration loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// PenaltyMode values select how a vague-reasoning penalty is applied to the
// qualification score. The two generations of the qualification prompt
// disagree on severity, so the choice is explicit configuration.
const (
	PenaltyModeCap  = "cap"  // cap the exposed score at 6
	PenaltyModeZero = "zero" // zero the exposed score entirely
)

// Config defines the application configuration parameters for all
// components of the LeadScout system.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Parser    ParserConfig    `mapstructure:"parser"`
	Qualifier QualifierConfig `mapstructure:"qualifier"`
	Pains     PainsConfig     `mapstructure:"pains"`
	Report    ReportConfig    `mapstructure:"report"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log output level and format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds Bot API credentials for the admin-facing front-end.
type TelegramConfig struct {
	Token       string `mapstructure:"token" validate:"required"`
	AdminChatID int64  `mapstructure:"admin_chat_id" validate:"required"`
}

// GeminiConfig holds settings for the Gemini language-generation client.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key" validate:"required"`
	ModelName         string  `mapstructure:"model_name" validate:"required"`
	Temperature       float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"min=0,max=300"`
}

// ParserConfig controls the member parser and the freshness tier policy.
// Tier boundaries must be strictly increasing; Validate enforces it.
type ParserConfig struct {
	MessagesLimit         int  `mapstructure:"messages_limit" validate:"min=1,max=10000"`
	MaxMessagesPerUser    int  `mapstructure:"max_messages_per_user" validate:"min=1,max=50"`
	MessageMaxAgeDays     int  `mapstructure:"message_max_age_days" validate:"min=1,max=365"`
	HighActivityThreshold int  `mapstructure:"high_activity_threshold" validate:"min=1"`
	HotMaxAgeDays         int  `mapstructure:"hot_max_age_days" validate:"min=1"`
	WarmMaxAgeDays        int  `mapstructure:"warm_max_age_days" validate:"min=1"`
	ColdMaxAgeDays        int  `mapstructure:"cold_max_age_days" validate:"min=1"`
	RequestDelayMinMs     int  `mapstructure:"request_delay_min_ms" validate:"min=0"`
	RequestDelayMaxMs     int  `mapstructure:"request_delay_max_ms" validate:"min=0"`
	UseBatchAnalysis      bool `mapstructure:"use_batch_analysis"`
	OnlyWithChannels      bool `mapstructure:"only_with_channels"`
}

// QualifierConfig controls lead qualification scoring.
type QualifierConfig struct {
	Niche               string `mapstructure:"niche"`
	ServicesDescription string `mapstructure:"services_description"`
	MinScore            int    `mapstructure:"min_score" validate:"min=0,max=10"`
	PenaltyMode         string `mapstructure:"penalty_mode" validate:"oneof=cap zero"`
}

// PainsConfig controls pain collection and clustering.
type PainsConfig struct {
	Enabled         bool  `mapstructure:"enabled"`
	BatchSize       int   `mapstructure:"batch_size" validate:"min=1,max=100"`
	BatchDelayMinMs int   `mapstructure:"batch_delay_min_ms" validate:"min=0"`
	BatchDelayMaxMs int   `mapstructure:"batch_delay_max_ms" validate:"min=0"`
	TrendWindowDays int   `mapstructure:"trend_window_days" validate:"min=1,max=90"`
	OwnerID         int64 `mapstructure:"owner_id" validate:"required"`
	ProgramID       int64 `mapstructure:"program_id" validate:"required"`
}

// ReportConfig controls where qualified-lead reports are written.
type ReportConfig struct {
	OutputDir string   `mapstructure:"output_dir" validate:"required"`
	Formats   []string `mapstructure:"formats" validate:"min=1,dive,oneof=json md"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig describes one scheduled task entry.
type TaskConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Schedule string   `mapstructure:"schedule"`
	Chats    []string `mapstructure:"chats"`
}

// Validate checks struct tags plus the cross-field invariants the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	p := c.Parser
	if !(p.HotMaxAgeDays < p.WarmMaxAgeDays && p.WarmMaxAgeDays < p.ColdMaxAgeDays) {
		return fmt.Errorf("freshness boundaries must be strictly increasing: hot=%d warm=%d cold=%d",
			p.HotMaxAgeDays, p.WarmMaxAgeDays, p.ColdMaxAgeDays)
	}
	if p.RequestDelayMinMs > p.RequestDelayMaxMs {
		return fmt.Errorf("parser request delay range is inverted: min=%dms max=%dms",
			p.RequestDelayMinMs, p.RequestDelayMaxMs)
	}
	if c.Pains.BatchDelayMinMs > c.Pains.BatchDelayMaxMs {
		return fmt.Errorf("pain batch delay range is inverted: min=%dms max=%dms",
			c.Pains.BatchDelayMinMs, c.Pains.BatchDelayMaxMs)
	}
	return nil
}

// RequestDelayRange returns the parser inter-request delay bounds.
func (p ParserConfig) RequestDelayRange() (time.Duration, time.Duration) {
	return time.Duration(p.RequestDelayMinMs) * time.Millisecond,
		time.Duration(p.RequestDelayMaxMs) * time.Millisecond
}

// BatchDelayRange returns the pain collector inter-batch delay bounds.
func (p PainsConfig) BatchDelayRange() (time.Duration, time.Duration) {
	return time.Duration(p.BatchDelayMinMs) * time.Millisecond,
		time.Duration(p.BatchDelayMaxMs) * time.Millisecond
}
