package engine

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/script"
)

// Config configures an Engine.
type Config struct {
	// TimingCalls is the size of each executor's timing window. Zero
	// disables timing entirely.
	TimingCalls int

	// Percentiles are the levels reported by timing summaries.
	Percentiles []float64

	// MaxParallel bounds the goroutines data-parallel leaves may use.
	MaxParallel int

	// MinChunk is the smallest number of records handed to one goroutine.
	MinChunk int

	// MaxDepth bounds nested invocations, so runaway recursion fails
	// instead of exhausting the stack.
	MaxDepth int

	// Script configures the runtimes of script executors.
	Script script.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	cc := concurrency.LoadConfig()
	return Config{
		TimingCalls: 0,
		Percentiles: []float64{0.5, 0.9, 0.99},
		MaxParallel: cc.EffectiveCPUs,
		MinChunk:    1024,
		MaxDepth:    256,
		Script:      script.DefaultConfig(),
	}
}

// LoadConfigFromEnv returns DefaultConfig overridden by DAEDALUS_* variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cc := concurrency.LoadConfig()
	cfg.MaxParallel = cc.MaxParallel
	cfg.MinChunk = cc.MinChunk

	if v := os.Getenv("DAEDALUS_TIMING_CALLS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("DAEDALUS_TIMING_CALLS: %w", err)
		}
		cfg.TimingCalls = n
	}
	if v := os.Getenv("DAEDALUS_TIMING_PERCENTILES"); v != "" {
		levels, err := ParsePercentiles(v)
		if err != nil {
			return cfg, fmt.Errorf("DAEDALUS_TIMING_PERCENTILES: %w", err)
		}
		cfg.Percentiles = levels
	}
	if v := os.Getenv("DAEDALUS_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("DAEDALUS_MAX_DEPTH: %w", err)
		}
		cfg.MaxDepth = n
	}
	if v := os.Getenv("DAEDALUS_SCRIPT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("DAEDALUS_SCRIPT_TIMEOUT: %w", err)
		}
		cfg.Script.Timeout = d
	}
	return cfg, cfg.Validate()
}

// ParsePercentiles parses a comma separated list of levels in [0, 1].
func ParsePercentiles(s string) ([]float64, error) {
	var levels []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		level, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		if level < 0 || level > 1 {
			return nil, fmt.Errorf("percentile %g out of range [0, 1]", level)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TimingCalls < 0 {
		return fmt.Errorf("timing calls must not be negative, got %d", c.TimingCalls)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max depth must be positive, got %d", c.MaxDepth)
	}
	return c.Script.Validate()
}

// WithTimingCalls sets the timing window size.
func (c Config) WithTimingCalls(n int) Config {
	c.TimingCalls = n
	return c
}

// WithPercentiles sets the reported percentile levels.
func (c Config) WithPercentiles(levels ...float64) Config {
	c.Percentiles = levels
	return c
}

// WithMaxParallel sets the data-parallel goroutine limit.
func (c Config) WithMaxParallel(n int) Config {
	c.MaxParallel = n
	return c
}

// WithMinChunk sets the smallest data-parallel chunk.
func (c Config) WithMinChunk(n int) Config {
	c.MinChunk = n
	return c
}

// WithMaxDepth sets the nested invocation limit.
func (c Config) WithMaxDepth(n int) Config {
	c.MaxDepth = n
	return c
}

// WithScript sets the script runtime configuration.
func (c Config) WithScript(sc script.Config) Config {
	c.Script = sc
	return c
}
