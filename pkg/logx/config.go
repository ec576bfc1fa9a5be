package logx

import (
	"io"
	"os"
	"strings"
	"time"
)

// Format represents the output format
type Format string

const (
	// FormatConsole outputs colored console logs (default)
	FormatConsole Format = "console"
	// FormatJSON outputs JSON formatted logs
	FormatJSON Format = "json"
	// FormatCloudWatch outputs CloudWatch compatible JSON
	FormatCloudWatch Format = "cloudwatch"
)

// Config holds the logger configuration
type Config struct {
	Level Level

	Format Format

	// EnableColors only applies to the console format
	EnableColors bool

	// EnableCaller adds file and line number to logs
	EnableCaller bool

	EnableTimestamp bool

	// TimeFormat is a Go layout, or "unix" / "unixmilli"
	TimeFormat string

	// Output defaults to os.Stdout
	Output io.Writer
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:           LevelInfo,
		Format:          FormatConsole,
		EnableColors:    true,
		EnableCaller:    false,
		EnableTimestamp: true,
		TimeFormat:      time.RFC3339,
		Output:          os.Stdout,
	}
}

// ParseFormat maps a format name to a Format, defaulting to console.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "cloudwatch":
		return FormatCloudWatch
	default:
		return FormatConsole
	}
}

// ParseTimeFormat accepts the well-known names (RFC3339, RFC3339NANO, UNIX,
// UNIXMILLI) or a raw Go layout.
func ParseTimeFormat(s string) string {
	switch strings.ToUpper(s) {
	case "", "RFC3339":
		return time.RFC3339
	case "RFC3339NANO":
		return time.RFC3339Nano
	case "UNIX":
		return "unix"
	case "UNIXMILLI":
		return "unixmilli"
	default:
		return s
	}
}
