// file: nats-micro/pkg/x_log/config.go
package x_log

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables honored by LoadConfigFromEnv.
const (
	EnvLogLevel        = "MICRO_LOG_LEVEL"
	EnvLogFormat       = "MICRO_LOG_FORMAT"
	EnvLogFile         = "MICRO_LOG_FILE"
	EnvLogFileMaxMB    = "MICRO_LOG_FILE_MAX_MB"
	EnvLogFileMaxAge   = "MICRO_LOG_FILE_MAX_AGE"
	EnvLogFileBackups  = "MICRO_LOG_FILE_BACKUPS"
	EnvLogFileCompress = "MICRO_LOG_FILE_COMPRESS"
)

// Config describes a logger.
type Config struct {
	Name   string // logger name, prepended to every entry
	Level  Level
	Format Format
	File   string // optional file output, rotated

	// Rotation knobs for File output.
	RotateMaxMB    int  // max size in MB before rotation
	RotateMaxAge   int  // days to keep rotated files
	RotateBackups  int  // rotated files to keep
	RotateCompress bool // gzip rotated files
}

// DefaultConfig returns the configuration used when nothing is set in
// the environment: info-level console logging to stderr.
func DefaultConfig() Config {
	return Config{
		Name:          "micro",
		Level:         InfoLevel,
		Format:        FormatConsole,
		RotateMaxMB:   100,
		RotateMaxAge:  7,
		RotateBackups: 5,
	}
}

// LoadConfigFromEnv builds a Config from MICRO_LOG_* variables on top
// of the defaults.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Level = ParseLevel(v)
	}
	if strings.EqualFold(os.Getenv(EnvLogFormat), "json") {
		cfg.Format = FormatJSON
	}
	cfg.File = os.Getenv(EnvLogFile)
	cfg.RotateMaxMB = intEnv(EnvLogFileMaxMB, cfg.RotateMaxMB)
	cfg.RotateMaxAge = intEnv(EnvLogFileMaxAge, cfg.RotateMaxAge)
	cfg.RotateBackups = intEnv(EnvLogFileBackups, cfg.RotateBackups)
	cfg.RotateCompress = strings.EqualFold(os.Getenv(EnvLogFileCompress), "true")

	return cfg
}

func intEnv(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
	}
	return fallback
}
