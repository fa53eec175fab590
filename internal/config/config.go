// Package config handles hookwatch configuration.
// Values come from defaults, an optional YAML file and environment variables,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
)

// Region is a tracked player slot in screen coordinates.
type Region struct {
	ID     string `mapstructure:"id"`
	Label  string `mapstructure:"label"`
	X      int    `mapstructure:"x"`
	Y      int    `mapstructure:"y"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

type Config struct {
	HTTPAddr            string
	GRPCAddr            string
	TemplateDir         string
	DebugDir            string
	DebugEvery          int // write debug images every N cycles, 0 disables
	SimilarityThreshold float64
	CaptureInterval     time.Duration
	CaptureDisplay      int
	CaptureReplayDir    string // when set, frames are read from this directory instead of the screen
	LogLevel            slog.Level
	BreakerThreshold    int
	BreakerReset        time.Duration
	EventBuffer         int
	Regions             []Region
}

// DefaultRegions returns the four survivor portrait slots of a 1920x1080 HUD.
func DefaultRegions() []Region {
	regions := make([]Region, 0, 4)
	for i := 0; i < 4; i++ {
		regions = append(regions, Region{
			ID:     fmt.Sprintf("survivor-%d", i+1),
			Label:  fmt.Sprintf("Survivor %d", i+1),
			X:      DefaultRegionX,
			Y:      DefaultRegionY + i*DefaultRegionStride,
			Width:  DefaultRegionSize,
			Height: DefaultRegionSize,
		})
	}
	return regions
}

// Load reads configuration. A missing default config file is not an error;
// a missing file named by CONFIG_FILE is.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "read config file")
		}
	}

	cfg := &Config{
		HTTPAddr:            v.GetString("http_addr"),
		GRPCAddr:            v.GetString("grpc_addr"),
		TemplateDir:         v.GetString("template_dir"),
		DebugDir:            v.GetString("debug_dir"),
		DebugEvery:          v.GetInt("debug_every"),
		SimilarityThreshold: v.GetFloat64("similarity_threshold"),
		CaptureInterval:     v.GetDuration("capture_interval"),
		CaptureDisplay:      v.GetInt("capture_display"),
		CaptureReplayDir:    v.GetString("capture_replay_dir"),
		LogLevel:            parseLevel(v.GetString("log_level")),
		BreakerThreshold:    v.GetInt("breaker_threshold"),
		BreakerReset:        v.GetDuration("breaker_reset"),
		EventBuffer:         v.GetInt("event_buffer"),
		Regions:             DefaultRegions(),
	}

	if v.IsSet("regions") {
		var regions []Region
		if err := v.UnmarshalKey("regions", &regions); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "decode regions")
		}
		cfg.Regions = regions
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config_file", "")
	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("grpc_addr", DefaultGRPCAddr)
	v.SetDefault("template_dir", DefaultTemplateDir)
	v.SetDefault("debug_dir", DefaultDebugDir)
	v.SetDefault("debug_every", 0)
	v.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("capture_interval", DefaultCaptureInterval)
	v.SetDefault("capture_display", 0)
	v.SetDefault("capture_replay_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("breaker_threshold", DefaultBreakerThreshold)
	v.SetDefault("breaker_reset", DefaultBreakerReset)
	v.SetDefault("event_buffer", DefaultEventBuffer)
}

// Validate rejects configurations the detector cannot run with.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return apperrors.Newf(apperrors.ConfigInvalid, "similarity threshold %v outside [-1, 1]", c.SimilarityThreshold)
	}
	if c.CaptureInterval <= 0 {
		return apperrors.Newf(apperrors.ConfigInvalid, "capture interval must be positive, got %v", c.CaptureInterval)
	}
	if c.CaptureDisplay < 0 {
		return apperrors.Newf(apperrors.ConfigInvalid, "capture_display must not be negative, got %d", c.CaptureDisplay)
	}
	if c.DebugEvery < 0 {
		return apperrors.Newf(apperrors.ConfigInvalid, "debug_every must not be negative, got %d", c.DebugEvery)
	}
	if len(c.Regions) == 0 {
		return apperrors.New(apperrors.ConfigInvalid, "at least one region is required")
	}

	seen := make(map[string]bool, len(c.Regions))
	for i, r := range c.Regions {
		if strings.TrimSpace(r.ID) == "" {
			return apperrors.Newf(apperrors.ConfigInvalid, "region %d has no id", i)
		}
		if seen[r.ID] {
			return apperrors.Newf(apperrors.ConfigInvalid, "duplicate region id %q", r.ID)
		}
		seen[r.ID] = true
		if r.Width <= 0 || r.Height <= 0 {
			return apperrors.Newf(apperrors.ConfigInvalid, "region %q has non-positive size %dx%d", r.ID, r.Width, r.Height).
				WithMetadata("region", r.ID)
		}
	}
	return nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
