// Package config provides configuration loading for the conversation pipeline.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drishiq/ddsa/pkg/engine"
	"github.com/drishiq/ddsa/pkg/queue"
	"github.com/drishiq/ddsa/pkg/services"
)

// DefaultFunnelSchedule is the cron expression the worker uses to log the
// funnel report when none is configured.
const DefaultFunnelSchedule = "0 * * * *"

// PipelineConfigFile represents the structure of the pipeline.yaml file.
type PipelineConfigFile struct {
	Retry     RetryConfigFile     `yaml:"retry"`
	Analytics AnalyticsConfigFile `yaml:"analytics"`
	Queue     QueueConfigFile     `yaml:"queue"`
}

// RetryConfigFile holds retry settings as they appear in YAML. Durations are
// Go duration strings ("500ms", "30s").
type RetryConfigFile struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	InitialInterval string  `yaml:"initial_interval"`
	MaxInterval     string  `yaml:"max_interval"`
	Multiplier      float64 `yaml:"multiplier"`
	AttemptTimeout  string  `yaml:"attempt_timeout"`
}

// AnalyticsConfigFile holds the fail-rate severity thresholds.
type AnalyticsConfigFile struct {
	RedThreshold    float64 `yaml:"red_threshold"`
	YellowThreshold float64 `yaml:"yellow_threshold"`
	FunnelSchedule  string  `yaml:"funnel_schedule"`
}

// QueueConfigFile holds the Redis turn intake settings.
type QueueConfigFile struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       string `yaml:"db"`
	Queue    string `yaml:"queue"`
}

// PipelineConfig is the resolved runtime configuration.
type PipelineConfig struct {
	Retry          engine.RetryPolicy
	Thresholds     services.SeverityThresholds
	FunnelSchedule string
	Queue          queue.Options
}

// DefaultPipelineConfig returns the configuration used when no file is given.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Retry:          engine.DefaultRetryPolicy(),
		Thresholds:     services.DefaultSeverityThresholds(),
		FunnelSchedule: DefaultFunnelSchedule,
	}
}

// LoadPipelineConfig loads pipeline configuration from a YAML file. Missing
// fields fall back to their defaults.
func LoadPipelineConfig(filepath string) (PipelineConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile PipelineConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return PipelineConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config := DefaultPipelineConfig()

	err = applyRetryConfig(&config.Retry, configFile.Retry)
	if err != nil {
		return PipelineConfig{}, err
	}

	if configFile.Analytics.RedThreshold > 0 {
		config.Thresholds.Red = configFile.Analytics.RedThreshold
	}

	if configFile.Analytics.YellowThreshold > 0 {
		config.Thresholds.Yellow = configFile.Analytics.YellowThreshold
	}

	if configFile.Analytics.FunnelSchedule != "" {
		config.FunnelSchedule = configFile.Analytics.FunnelSchedule
	}

	config.Queue = queue.Options{
		Addr:     configFile.Queue.Addr,
		Password: configFile.Queue.Password,
		DB:       configFile.Queue.DB,
		Queue:    configFile.Queue.Queue,
	}

	err = ValidatePipelineConfig(config)
	if err != nil {
		return PipelineConfig{}, err
	}

	return config, nil
}

// LoadPipelineConfigOrDefault attempts to load pipeline config from a file,
// falling back to defaults when the file is missing or malformed. The load
// error is logged so a broken config does not pass silently.
func LoadPipelineConfigOrDefault(filepath string) PipelineConfig {
	if filepath == "" {
		return DefaultPipelineConfig()
	}

	config, err := LoadPipelineConfig(filepath)
	if err != nil {
		slog.Warn("Failed to load pipeline config, using defaults", "path", filepath, "error", err)

		return DefaultPipelineConfig()
	}

	return config
}

func applyRetryConfig(policy *engine.RetryPolicy, file RetryConfigFile) error {
	if file.MaxAttempts > 0 {
		policy.MaxAttempts = file.MaxAttempts
	}

	if file.Multiplier > 0 {
		policy.Multiplier = file.Multiplier
	}

	durations := []struct {
		value  string
		target *time.Duration
		field  string
	}{
		{file.InitialInterval, &policy.InitialInterval, "initial_interval"},
		{file.MaxInterval, &policy.MaxInterval, "max_interval"},
		{file.AttemptTimeout, &policy.AttemptTimeout, "attempt_timeout"},
	}

	for _, d := range durations {
		if d.value == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("retry.%s: %w", d.field, err)
		}

		*d.target = parsed
	}

	return nil
}

// ValidatePipelineConfig validates the resolved configuration.
func ValidatePipelineConfig(config PipelineConfig) error {
	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}

	if config.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}

	if config.Thresholds.Red < config.Thresholds.Yellow {
		return fmt.Errorf("analytics.red_threshold must not be below yellow_threshold")
	}

	return nil
}
