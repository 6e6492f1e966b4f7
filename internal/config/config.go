// Package config loads the settings for the training and
// evaluation commands.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable
// that configures the commands.
const EnvPrefix = "ANYSPEECH"

// Config holds all configuration for a training or
// evaluation run.
type Config struct {
	// Corpus files
	SCP          string `mapstructure:"scp"`
	MLF          string `mapstructure:"mlf"`
	Symbols      string `mapstructure:"symbols"`
	FeatureRoot  string `mapstructure:"feature_root"`
	Mean         string `mapstructure:"mean"`
	InvStd       string `mapstructure:"inv_std"`
	FeatureDim   int    `mapstructure:"feature_dim"`
	ContextLeft  int    `mapstructure:"context_left"`
	ContextRight int    `mapstructure:"context_right"`

	// Model
	ModelPath string  `mapstructure:"model_path"`
	Hidden    int     `mapstructure:"hidden"`
	Layers    int     `mapstructure:"layers"`
	KeepProb  float64 `mapstructure:"keep_prob"`
	Precision string  `mapstructure:"precision"`

	// Training
	Optimizer          string  `mapstructure:"optimizer"`
	LearningRate       float64 `mapstructure:"learning_rate"`
	LearningRateDecay  float64 `mapstructure:"learning_rate_decay"`
	MinLearningRate    float64 `mapstructure:"min_learning_rate"`
	Momentum           float64 `mapstructure:"momentum"`
	UnitGain           bool    `mapstructure:"unit_gain"`
	GradClip           float64 `mapstructure:"grad_clip"`
	BatchSize          int     `mapstructure:"batch_size"`
	MaxIters           int     `mapstructure:"max_iters"`
	LogInterval        int     `mapstructure:"log_interval"`
	SaveInterval       int     `mapstructure:"save_interval"`
	ValidationFraction float64 `mapstructure:"validation_fraction"`
	SortWindow         int     `mapstructure:"sort_window"`
	MaxGos             int     `mapstructure:"max_gos"`

	// Observability and caching
	MetricsPort  int           `mapstructure:"metrics_port"`
	OTELEnabled  bool          `mapstructure:"otel_enabled"`
	Redis        string        `mapstructure:"redis"`
	RedisTTL     time.Duration `mapstructure:"redis_ttl"`
	IgnoreTokens []int         `mapstructure:"ignore_tokens"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scp", "")
	v.SetDefault("mlf", "")
	v.SetDefault("symbols", "")
	v.SetDefault("feature_root", "")
	v.SetDefault("mean", "")
	v.SetDefault("inv_std", "")
	v.SetDefault("feature_dim", 33)
	v.SetDefault("context_left", 5)
	v.SetDefault("context_right", 5)

	v.SetDefault("model_path", "model.out")
	v.SetDefault("hidden", 1024)
	v.SetDefault("layers", 3)
	v.SetDefault("keep_prob", 1.0)
	v.SetDefault("precision", "float32")

	v.SetDefault("optimizer", "momentum")
	v.SetDefault("learning_rate", 0.001)
	v.SetDefault("learning_rate_decay", 1.0)
	v.SetDefault("min_learning_rate", 0.0)
	v.SetDefault("momentum", 0.9)
	v.SetDefault("unit_gain", false)
	v.SetDefault("grad_clip", 0.0)
	v.SetDefault("batch_size", 16)
	v.SetDefault("max_iters", 0)
	v.SetDefault("log_interval", 10)
	v.SetDefault("save_interval", 100)
	v.SetDefault("validation_fraction", 0.1)
	v.SetDefault("sort_window", 0)
	v.SetDefault("max_gos", 0)

	v.SetDefault("metrics_port", 0)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("redis", "")
	v.SetDefault("redis_ttl", 24*time.Hour)
	v.SetDefault("ignore_tokens", []int{})
}

// Load loads configuration from defaults, an optional
// config file, environment variables, and overrides.
// Priority (highest to lowest): overrides > env vars >
// config file > defaults.
//
// If configFile is empty, a file named anyspeech.yaml is
// looked up in the working directory and ignored if it
// does not exist.
func Load(configFile string, overrides map[string]interface{}) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("anyspeech")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ValidateData checks the corpus settings.
func (c *Config) ValidateData() error {
	if c.SCP == "" {
		return fmt.Errorf("scp path is required")
	}
	if c.MLF == "" {
		return fmt.Errorf("mlf path is required")
	}
	if c.Symbols == "" {
		return fmt.Errorf("symbols path is required")
	}
	if (c.Mean == "") != (c.InvStd == "") {
		return fmt.Errorf("mean and inv_std must be given together")
	}
	if c.FeatureDim <= 0 {
		return fmt.Errorf("invalid feature_dim: %d", c.FeatureDim)
	}
	if c.ContextLeft < 0 || c.ContextRight < 0 {
		return fmt.Errorf("invalid context window: %d/%d", c.ContextLeft, c.ContextRight)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("model_path is required")
	}
	if c.Precision != "float32" && c.Precision != "float64" {
		return fmt.Errorf("invalid precision: %s", c.Precision)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	return nil
}

// Validate checks the settings needed for training.
func (c *Config) Validate() error {
	if err := c.ValidateData(); err != nil {
		return err
	}
	if c.Hidden <= 0 || c.Layers <= 0 {
		return fmt.Errorf("invalid model size: %d layers of %d", c.Layers, c.Hidden)
	}
	if c.KeepProb <= 0 || c.KeepProb > 1 {
		return fmt.Errorf("keep_prob must be in (0, 1]: %f", c.KeepProb)
	}
	if c.Optimizer != "momentum" && c.Optimizer != "adam" {
		return fmt.Errorf("unknown optimizer: %s", c.Optimizer)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive: %f", c.LearningRate)
	}
	if c.LearningRateDecay <= 0 || c.LearningRateDecay > 1 {
		return fmt.Errorf("learning_rate_decay must be in (0, 1]: %f", c.LearningRateDecay)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return fmt.Errorf("momentum must be in [0, 1): %f", c.Momentum)
	}
	if c.GradClip < 0 {
		return fmt.Errorf("grad_clip must not be negative: %f", c.GradClip)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid batch_size: %d", c.BatchSize)
	}
	if c.MaxIters < 0 || c.LogInterval <= 0 || c.SaveInterval <= 0 {
		return fmt.Errorf("max_iters, log_interval and save_interval must be positive")
	}
	if c.ValidationFraction < 0 || c.ValidationFraction >= 1 {
		return fmt.Errorf("validation_fraction must be in [0, 1): %f", c.ValidationFraction)
	}
	return nil
}
