// Package config loads the tracker configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kdimtricp/lostfound/internal/color"
	"github.com/kdimtricp/lostfound/internal/logreader"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "TRACKER_"

type Config struct {
	MaxLostTimeSeconds       float64  `yaml:"maxLostTimeSeconds"`
	ColorSimilarityThreshold *float64 `yaml:"colorSimilarityThreshold"`
	LostSimilarityThreshold  *float64 `yaml:"lostSimilarityThreshold"`
	DescriptorKind           string   `yaml:"descriptorKind"`
	ReadStrategy             string   `yaml:"readStrategy"`
	FrameNumbering           string   `yaml:"frameNumbering"`
	PollIntervalSeconds      float64  `yaml:"pollIntervalSeconds"`
	MissingLogBackoffSeconds float64  `yaml:"missingLogBackoffSeconds"`
	RetentionWindowFrames    *int     `yaml:"retentionWindowFrames"`
	FramesPerSecond          float64  `yaml:"framesPerSecond"`
	LostPoolRematch          *bool    `yaml:"lostPoolRematch"`
	IgnoredClasses           []string `yaml:"ignoredClasses"`
	LogMode                  string   `yaml:"logMode"`

	Paths    PathsConfig    `yaml:"paths"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type PathsConfig struct {
	Log       string `yaml:"log"`
	Snapshot  string `yaml:"snapshot"`
	Frames    string `yaml:"frames"`
	Artifacts string `yaml:"artifacts"`
}

// DatabaseConfig configures the lost-object history. An empty Type disables it.
type DatabaseConfig struct {
	Type       string `yaml:"type"`
	SQLitePath string `yaml:"sqlitePath"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path (if non-empty), applies TRACKER_* environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate fills defaults and rejects values the tracker cannot run with.
func Validate(cfg *Config) error {
	var errs []error

	kind, err := color.ParseKind(cfg.DescriptorKind)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DescriptorKind = string(kind)
	}
	strategy, err := logreader.ParseStrategy(cfg.ReadStrategy)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ReadStrategy = string(strategy)
	}
	numbering, err := logreader.ParseNumbering(cfg.FrameNumbering)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FrameNumbering = string(numbering)
	}

	if cfg.ColorSimilarityThreshold == nil && kind != "" {
		if cmp, err := color.New(kind); err == nil {
			cfg.ColorSimilarityThreshold = ptr(cmp.DefaultThreshold())
		}
	}
	if cfg.ColorSimilarityThreshold != nil && kind == color.KindMeanColor && *cfg.ColorSimilarityThreshold < 0 {
		errs = append(errs, fmt.Errorf("colorSimilarityThreshold must be non-negative for %s", kind))
	}
	if cfg.LostSimilarityThreshold != nil && kind == color.KindMeanColor && *cfg.LostSimilarityThreshold < 0 {
		errs = append(errs, fmt.Errorf("lostSimilarityThreshold must be non-negative for %s", kind))
	}

	nonNegative := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be non-negative, got %v", name, v))
		}
	}
	nonNegative("maxLostTimeSeconds", cfg.MaxLostTimeSeconds)
	nonNegative("pollIntervalSeconds", cfg.PollIntervalSeconds)
	nonNegative("missingLogBackoffSeconds", cfg.MissingLogBackoffSeconds)
	nonNegative("framesPerSecond", cfg.FramesPerSecond)

	if cfg.MaxLostTimeSeconds == 0 {
		cfg.MaxLostTimeSeconds = 5
	}
	if cfg.FramesPerSecond == 0 {
		cfg.FramesPerSecond = 10
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 2
	}
	if cfg.MissingLogBackoffSeconds == 0 {
		cfg.MissingLogBackoffSeconds = 10
	}
	if cfg.RetentionWindowFrames == nil {
		cfg.RetentionWindowFrames = ptr(10)
	} else if *cfg.RetentionWindowFrames < 0 {
		errs = append(errs, fmt.Errorf("retentionWindowFrames must be non-negative, got %d", *cfg.RetentionWindowFrames))
	}
	if cfg.LostPoolRematch == nil {
		cfg.LostPoolRematch = ptr(true)
	}
	if cfg.LogMode == "" {
		cfg.LogMode = "development"
	}

	if cfg.Paths.Log == "" {
		cfg.Paths.Log = "detections.txt"
	}
	if cfg.Paths.Snapshot == "" {
		cfg.Paths.Snapshot = "identities.txt"
	}
	if cfg.Paths.Frames == "" {
		cfg.Paths.Frames = "frames"
	}
	if cfg.Paths.Artifacts == "" {
		cfg.Paths.Artifacts = "lost_objects"
	}

	switch cfg.Database.Type {
	case "":
	case "sqlite":
		if cfg.Database.SQLitePath == "" {
			cfg.Database.SQLitePath = "./lostfound.db"
		}
	case "postgres":
		if cfg.Database.Host == "" {
			cfg.Database.Host = "localhost"
		}
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
		if cfg.Database.User == "" {
			cfg.Database.User = "lostfound"
		}
		if cfg.Database.Name == "" {
			cfg.Database.Name = "lostfound"
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database type %q", cfg.Database.Type))
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	return errors.Join(errs...)
}

func (c *Config) Kind() color.Kind { return color.Kind(c.DescriptorKind) }

func (c *Config) Strategy() logreader.Strategy { return logreader.Strategy(c.ReadStrategy) }

func (c *Config) Numbering() logreader.Numbering { return logreader.Numbering(c.FrameNumbering) }

func (c *Config) PollInterval() time.Duration { return seconds(c.PollIntervalSeconds) }

func (c *Config) MissingLogBackoff() time.Duration { return seconds(c.MissingLogBackoffSeconds) }

// LostThreshold is the explicit lost-pool threshold, or 0 to derive it.
func (c *Config) LostThreshold() float64 {
	if c.LostSimilarityThreshold == nil {
		return 0
	}
	return *c.LostSimilarityThreshold
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func ptr[T any](v T) *T { return &v }

// applyEnv overrides fields from TRACKER_* variables, e.g.
// TRACKER_MAX_LOST_TIME_SECONDS or TRACKER_DB_PASSWORD.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	floatPtr := func(key string, dst **float64) {
		var f float64
		if _, ok := lookup(EnvPrefix + key); ok {
			float(key, &f)
			*dst = &f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	float("MAX_LOST_TIME_SECONDS", &cfg.MaxLostTimeSeconds)
	floatPtr("COLOR_SIMILARITY_THRESHOLD", &cfg.ColorSimilarityThreshold)
	floatPtr("LOST_SIMILARITY_THRESHOLD", &cfg.LostSimilarityThreshold)
	str("DESCRIPTOR_KIND", &cfg.DescriptorKind)
	str("READ_STRATEGY", &cfg.ReadStrategy)
	str("FRAME_NUMBERING", &cfg.FrameNumbering)
	float("POLL_INTERVAL_SECONDS", &cfg.PollIntervalSeconds)
	float("MISSING_LOG_BACKOFF_SECONDS", &cfg.MissingLogBackoffSeconds)
	float("FRAMES_PER_SECOND", &cfg.FramesPerSecond)
	if _, ok := lookup(EnvPrefix + "RETENTION_WINDOW_FRAMES"); ok {
		var n int
		integer("RETENTION_WINDOW_FRAMES", &n)
		cfg.RetentionWindowFrames = &n
	}
	if _, ok := lookup(EnvPrefix + "LOST_POOL_REMATCH"); ok {
		var b bool
		boolean("LOST_POOL_REMATCH", &b)
		cfg.LostPoolRematch = &b
	}
	if v, ok := lookup(EnvPrefix + "IGNORED_CLASSES"); ok {
		cfg.IgnoredClasses = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.IgnoredClasses = append(cfg.IgnoredClasses, name)
			}
		}
	}
	str("LOG_MODE", &cfg.LogMode)

	str("LOG_PATH", &cfg.Paths.Log)
	str("SNAPSHOT_PATH", &cfg.Paths.Snapshot)
	str("FRAMES_DIR", &cfg.Paths.Frames)
	str("ARTIFACTS_DIR", &cfg.Paths.Artifacts)

	str("DB_TYPE", &cfg.Database.Type)
	str("DB_PATH", &cfg.Database.SQLitePath)
	str("DB_HOST", &cfg.Database.Host)
	integer("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)

	boolean("HTTP_ENABLED", &cfg.HTTP.Enabled)
	str("HTTP_ADDR", &cfg.HTTP.Addr)

	return errors.Join(errs...)
}
