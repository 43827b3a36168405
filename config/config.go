// Package config holds the translator's tunable behavior: which
// optimization passes run, how large a function is allowed to grow, and
// whether the decode cache is enabled.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cellforge/ppuxlate/segment"
)

// TranslatorConfig controls one run of the translator end to end.
type TranslatorConfig struct {
	// Passes is the ordered optimization pipeline run over every
	// function after lowering.
	Passes []string `json:"passes"`

	// MaxFunctionSize caps how many bytes the CFG builder will grow a
	// single function before giving up on it (the function is rejected,
	// not truncated), guarding against a misidentified entry point
	// consuming the rest of the segment. Zero means unbounded.
	MaxFunctionSize uint32 `json:"max_function_size"`

	// DecodeCacheEnabled toggles the Akita-backed decode cache.
	// Disabling it must never change a translation's output, only its
	// speed.
	DecodeCacheEnabled bool `json:"decode_cache_enabled"`

	// DecodeCacheSets and DecodeCacheWays size the decode cache when
	// enabled.
	DecodeCacheSets int `json:"decode_cache_sets"`
	DecodeCacheWays int `json:"decode_cache_ways"`

	// WarnOnUnknownOpcode logs a word the dispatch table could not
	// classify instead of silently treating it as a no-op.
	WarnOnUnknownOpcode bool `json:"warn_on_unknown_opcode"`
}

// Default returns the translator's baseline configuration.
func Default() *TranslatorConfig {
	return &TranslatorConfig{
		Passes:              append([]string(nil), segment.DefaultPasses...),
		MaxFunctionSize:     0,
		DecodeCacheEnabled:  true,
		DecodeCacheSets:     512,
		DecodeCacheWays:     4,
		WarnOnUnknownOpcode: false,
	}
}

// Load reads a TranslatorConfig from a JSON file, starting from Default
// so a partial file only overrides what it sets.
func Load(path string) (*TranslatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read translator config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse translator config: %w", err)
	}

	return cfg, nil
}

// Save writes the TranslatorConfig to a JSON file.
func (c *TranslatorConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize translator config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write translator config file: %w", err)
	}

	return nil
}

// Validate rejects a configuration the translator cannot run with.
func (c *TranslatorConfig) Validate() error {
	if len(c.Passes) == 0 {
		return fmt.Errorf("passes must not be empty")
	}
	if c.DecodeCacheEnabled {
		if c.DecodeCacheSets <= 0 {
			return fmt.Errorf("decode_cache_sets must be > 0")
		}
		if c.DecodeCacheWays <= 0 {
			return fmt.Errorf("decode_cache_ways must be > 0")
		}
	}
	return nil
}

// Clone returns a deep copy of the TranslatorConfig.
func (c *TranslatorConfig) Clone() *TranslatorConfig {
	return &TranslatorConfig{
		Passes:              append([]string(nil), c.Passes...),
		MaxFunctionSize:     c.MaxFunctionSize,
		DecodeCacheEnabled:  c.DecodeCacheEnabled,
		DecodeCacheSets:     c.DecodeCacheSets,
		DecodeCacheWays:     c.DecodeCacheWays,
		WarnOnUnknownOpcode: c.WarnOnUnknownOpcode,
	}
}
