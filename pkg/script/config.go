// Package script runs JavaScript executor bodies on a pool of sandboxed goja
// runtimes.
package script

import (
	"fmt"
	"time"
)

// Security levels restrict what a script may reach.
const (
	SecurityLevelStrict     = "strict"
	SecurityLevelStandard   = "standard"
	SecurityLevelPermissive = "permissive"
)

// Config controls the runtimes of a pool.
type Config struct {
	// Timeout bounds a single entry-point call.
	Timeout time.Duration
	// SecurityLevel is strict, standard or permissive.
	SecurityLevel string
	// MaxCallStackSize bounds JavaScript recursion.
	MaxCallStackSize int
	// MaxSize is the maximum number of runtimes kept by the pool.
	MaxSize int
	// MaxReuseCount recycles a runtime after that many uses.
	MaxReuseCount int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		SecurityLevel:    SecurityLevelStandard,
		MaxCallStackSize: 1024,
		MaxSize:          8,
		MaxReuseCount:    1000,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = d.SecurityLevel
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = d.MaxCallStackSize
	}
	if c.MaxSize <= 0 {
		c.MaxSize = d.MaxSize
	}
	if c.MaxReuseCount <= 0 {
		c.MaxReuseCount = d.MaxReuseCount
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.SecurityLevel {
	case "", SecurityLevelStrict, SecurityLevelStandard, SecurityLevelPermissive:
		return nil
	default:
		return fmt.Errorf("invalid security level %q", c.SecurityLevel)
	}
}
