// Package concurrency bounds the data-parallel work leaf executors do inside
// a single invocation.
package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Config holds concurrency configuration parameters
type Config struct {
	// MaxParallel bounds the goroutines one invocation may run at once.
	MaxParallel int
	// MinChunk is the smallest number of records handed to one goroutine.
	MinChunk      int
	EffectiveCPUs int
	Source        ConfigSource
}

// LoadConfig loads concurrency configuration with priority: env vars > auto-detection
func LoadConfig() *Config {
	config := &Config{
		EffectiveCPUs: runtime.GOMAXPROCS(0),
		MinChunk:      getEnvInt("DAEDALUS_MIN_CHUNK", 1024),
	}

	if maxParallel := getEnvInt("DAEDALUS_MAX_PARALLEL", 0); maxParallel > 0 {
		config.MaxParallel = maxParallel
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxParallel = config.EffectiveCPUs
		config.Source = ConfigSourceAutoDetect
	}

	if config.MaxParallel < 1 {
		config.MaxParallel = 1
	}
	if config.MinChunk < 1 {
		config.MinChunk = 1
	}
	return config
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{MaxParallel: %d, MinChunk: %d, CPUs: %d, Source: %s}",
		c.MaxParallel, c.MinChunk, c.EffectiveCPUs, c.Source)
}
