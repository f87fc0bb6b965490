package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/jzx17/simplepool/pkg/affinity"
)

const (
	// ConstantConfigFilename is read when Load is given an empty filename.
	ConstantConfigFilename = ".env"

	DefaultLogLevel    = "info"
	DefaultTasks       = 1000
	DefaultPinWorkers  = false
	DefaultMetricsAddr = ""
)

type Config struct {
	PoolSize    int
	PinWorkers  bool
	LogLevel    string
	Tasks       int
	MetricsAddr string
}

// DefaultPoolSize is the host's hardware concurrency, or 1 when the host
// reports nothing usable.
func DefaultPoolSize() int {
	if n := affinity.HardwareConcurrency(); n > 0 {
		return n
	}
	return 1
}

func (c *Config) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("pool size must be positive, got %d", c.PoolSize)
	}
	if c.Tasks < 0 {
		return fmt.Errorf("task count must not be negative, got %d", c.Tasks)
	}
	return nil
}

// Load reads filename as a dotenv file, ignoring a missing file, and builds
// the config from the environment. Variables already set in the environment
// win over the file.
func Load(filename string) *Config {
	if filename == "" {
		filename = ConstantConfigFilename
	}
	_ = godotenv.Load(filename)

	return &Config{
		PoolSize:    getEnvInt("SIMPLEPOOL_SIZE", DefaultPoolSize()),
		PinWorkers:  getEnvBool("SIMPLEPOOL_PIN_WORKERS", DefaultPinWorkers),
		LogLevel:    getEnv("SIMPLEPOOL_LOG_LEVEL", DefaultLogLevel),
		Tasks:       getEnvInt("SIMPLEPOOL_TASKS", DefaultTasks),
		MetricsAddr: getEnv("SIMPLEPOOL_METRICS_ADDR", DefaultMetricsAddr),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
