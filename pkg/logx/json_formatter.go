package logx

import (
	"encoding/json"
	"time"
)

// JSONFormatter formats logs as one JSON object per line
type JSONFormatter struct {
	config *Config
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(config *Config) *JSONFormatter {
	return &JSONFormatter{config: config}
}

func (f *JSONFormatter) base(entry *LogEntry, levelKey, msgKey string) map[string]interface{} {
	data := make(map[string]interface{}, len(entry.Fields)+5)
	for k, v := range entry.Fields {
		data[k] = v
	}

	data[levelKey] = entry.Level.String()
	data[msgKey] = entry.Message

	if f.config.EnableCaller && entry.Caller != "" {
		data["caller"] = entry.Caller
	}
	if entry.Error != nil {
		data["error"] = entry.Error.Error()
	}
	if entry.Data != nil {
		data["data"] = entry.Data
	}
	return data
}

// Format formats a log entry as JSON
func (f *JSONFormatter) Format(entry *LogEntry) ([]byte, error) {
	data := f.base(entry, "level", "message")

	if f.config.EnableTimestamp {
		switch f.config.TimeFormat {
		case "unix":
			data["timestamp"] = entry.Timestamp.Unix()
		case "unixmilli":
			data["timestamp"] = entry.Timestamp.UnixMilli()
		default:
			data["timestamp"] = entry.Timestamp.Format(time.RFC3339Nano)
		}
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// CloudWatchFormatter formats logs for AWS CloudWatch Logs Insights
type CloudWatchFormatter struct {
	*JSONFormatter
}

// NewCloudWatchFormatter creates a new CloudWatch formatter
func NewCloudWatchFormatter(config *Config) *CloudWatchFormatter {
	return &CloudWatchFormatter{JSONFormatter: NewJSONFormatter(config)}
}

// Format formats a log entry for CloudWatch
func (f *CloudWatchFormatter) Format(entry *LogEntry) ([]byte, error) {
	data := f.base(entry, "level", "msg")
	data["time"] = entry.Timestamp.Format(time.RFC3339Nano)
	if entry.Error != nil {
		data["error_type"] = "error"
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
