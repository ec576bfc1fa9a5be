package logx

import (
	"fmt"
	"sort"
	"strings"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
	colorWhite = "\033[97m"

	colorBoldRed     = "\033[1;31m"
	colorBoldYellow  = "\033[1;33m"
	colorBoldCyan    = "\033[1;36m"
	colorBoldGreen   = "\033[1;32m"
	colorBoldMagenta = "\033[1;35m"
)

// ConsoleFormatter formats logs for console output with colors
type ConsoleFormatter struct {
	config *Config
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter(config *Config) *ConsoleFormatter {
	return &ConsoleFormatter{config: config}
}

func (f *ConsoleFormatter) paint(b *strings.Builder, color, s string) {
	if f.config.EnableColors {
		b.WriteString(color)
		b.WriteString(s)
		b.WriteString(colorReset)
		return
	}
	b.WriteString(s)
}

// Format renders: timestamp [LEVEL] [caller] message k=v ... with fields in key order.
func (f *ConsoleFormatter) Format(entry *LogEntry) ([]byte, error) {
	var b strings.Builder

	if f.config.EnableTimestamp {
		f.paint(&b, colorGray, formatTimestamp(entry.Timestamp, f.config.TimeFormat))
		b.WriteString(" ")
	}

	b.WriteString(f.formatLevel(entry.Level))
	b.WriteString(" ")

	if f.config.EnableCaller && entry.Caller != "" {
		f.paint(&b, colorGray, "["+entry.Caller+"]")
		b.WriteString(" ")
	}

	f.paint(&b, colorWhite, entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			if k == "error" && entry.Error != nil {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, entry.Fields[k])
		}
		if len(pairs) > 0 {
			b.WriteString(" ")
			f.paint(&b, colorCyan, strings.Join(pairs, " "))
		}
	}

	if entry.Error != nil {
		b.WriteString("\n")
		f.paint(&b, colorRed, "  error: "+entry.Error.Error())
	}

	b.WriteString("\n")
	if entry.Data != nil {
		for _, line := range strings.Split(prettyJSON(entry.Data), "\n") {
			f.paint(&b, colorGray, "  "+line)
			b.WriteString("\n")
		}
	}

	return []byte(b.String()), nil
}

func (f *ConsoleFormatter) formatLevel(level Level) string {
	label := fmt.Sprintf("[%-5s]", level.String())
	if !f.config.EnableColors {
		return label
	}

	switch level {
	case LevelTrace:
		return colorGray + label + colorReset
	case LevelDebug:
		return colorBoldCyan + label + colorReset
	case LevelInfo:
		return colorBoldGreen + label + colorReset
	case LevelWarn:
		return colorBoldYellow + label + colorReset
	case LevelError:
		return colorBoldRed + label + colorReset
	case LevelFatal:
		return colorBoldMagenta + label + colorReset
	default:
		return label
	}
}
