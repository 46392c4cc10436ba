package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Config holds the request concurrency settings of the service.
type Config struct {
	MaxConcurrent    int
	BreakerThreshold int64
	BreakerReset     time.Duration
	Source           ConfigSource
	IsKubernetes     bool
	EffectiveCPUs    int
}

// LoadConfig reads ARIADNE_MAX_CONCURRENT, ARIADNE_CONCURRENCY_MULTIPLIER,
// ARIADNE_BREAKER_THRESHOLD and ARIADNE_BREAKER_RESET. Unset values fall back
// to defaults derived from the effective CPU count.
func LoadConfig() *Config {
	config := &Config{
		IsKubernetes:  isKubernetes(),
		EffectiveCPUs: runtime.GOMAXPROCS(0),
	}

	if maxConcurrent := getEnvInt("ARIADNE_MAX_CONCURRENT", 0); maxConcurrent > 0 {
		config.MaxConcurrent = maxConcurrent
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt("ARIADNE_CONCURRENCY_MULTIPLIER", 0); multiplier > 0 {
		config.MaxConcurrent = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxConcurrent = defaultMaxConcurrent(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	config.BreakerThreshold = int64(getEnvInt("ARIADNE_BREAKER_THRESHOLD", 100))
	config.BreakerReset = 30 * time.Second
	if v := os.Getenv("ARIADNE_BREAKER_RESET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.BreakerReset = d
		}
	}

	return config
}

// NewLimiter builds a limiter from the configuration.
func (c *Config) NewLimiter() *Limiter {
	return NewLimiterWithCircuitBreaker(c.MaxConcurrent, NewCircuitBreaker(c.BreakerThreshold, c.BreakerReset))
}

// Kubernetes sets this in every container.
func isKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func defaultMaxConcurrent(isK8s bool, cpus int) int {
	if isK8s {
		return cpus * 2
	}
	return cpus * 4
}

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
	return fmt.Sprintf(
		"Config{MaxConcurrent: %d, BreakerThreshold: %d, BreakerReset: %s, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxConcurrent,
		c.BreakerThreshold,
		c.BreakerReset,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}
