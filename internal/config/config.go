// Package config loads workspace configuration through viper.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/aweris/fedfs/internal/cache"
	"github.com/aweris/fedfs/internal/graph"
	"github.com/aweris/fedfs/internal/merge"
)

var validate = validator.New()

// Config describes one workspace and its sources.
type Config struct {
	Workspace string         `mapstructure:"workspace" validate:"required"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Merge     MergeConfig    `mapstructure:"merge"`
	Sources   []SourceConfig `mapstructure:"sources" validate:"required,min=1,dive"`
}

type CacheConfig struct {
	TTLSeconds     int64 `mapstructure:"ttl_seconds" validate:"gte=0"`
	MaxEntries     int   `mapstructure:"max_entries" validate:"gte=0"`
	WeakReferences bool  `mapstructure:"weak_references"`
	Revalidate     bool  `mapstructure:"revalidate"`
}

type MergeConfig struct {
	RemoveDuplicates bool   `mapstructure:"remove_duplicates"`
	AdoptUUID        bool   `mapstructure:"adopt_uuid"`
	Placeholders     string `mapstructure:"placeholders" validate:"omitempty,oneof=keep yield"`
	Concurrency      int    `mapstructure:"concurrency" validate:"gte=0"`
}

// SourceConfig is one source, listed in priority order.
type SourceConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	Mount    string `mapstructure:"mount" validate:"required,startswith=/"`
	Seed     string `mapstructure:"seed"`
	ReadOnly bool   `mapstructure:"read_only"`
	// TTLSeconds bounds how long contributions of this source stay valid.
	TTLSeconds int64 `mapstructure:"ttl_seconds" validate:"gte=0"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace", "default")
	v.SetDefault("cache.ttl_seconds", 0)
	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("merge.remove_duplicates", true)
	v.SetDefault("merge.adopt_uuid", true)
	v.SetDefault("merge.placeholders", "keep")
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field constraints and that every mount parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("invalid config: duplicate source %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if _, err := graph.ParsePath(s.Mount); err != nil {
			return fmt.Errorf("invalid config: source %s: %w", s.Name, err)
		}
	}
	return nil
}

func (c *Config) MergeOptions() (merge.Options, error) {
	policy, err := merge.ParsePlaceholderPolicy(c.Merge.Placeholders)
	if err != nil {
		return merge.Options{}, err
	}
	return merge.Options{
		RemoveDuplicates: c.Merge.RemoveDuplicates,
		AdoptUUID:        c.Merge.AdoptUUID,
		Placeholders:     policy,
	}, nil
}

func (c *Config) CachePolicy() cache.BasicPolicy {
	return cache.BasicPolicy{TimeToLive: cache.TTLSeconds(c.Cache.TTLSeconds)}
}

// MountPath returns the parsed mount of s.
func (s SourceConfig) MountPath() graph.Path {
	p, err := graph.ParsePath(s.Mount)
	if err != nil {
		return graph.Root
	}
	return p
}

// ContributionTTL returns the source's contribution lifetime; zero means
// contributions never expire.
func (s SourceConfig) ContributionTTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}
