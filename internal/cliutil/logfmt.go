package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/procwire/procwire/internal/logmux"
)

// LogRecord represents a structured log entry ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Stage     string    `json:"stage"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
}

// NewLogRecord converts a mux entry into a structured log record.
func NewLogRecord(entry logmux.Entry) LogRecord {
	level := entry.Level
	if level == "" {
		if inferred := inferLogLevel(entry.Message); inferred != "" {
			level = inferred
		} else {
			level = "info"
		}
	}
	source := entry.Source
	if source == "" {
		source = logmux.SourceSystem
	}
	return LogRecord{
		Timestamp: entry.Timestamp,
		Stage:     entry.Stage,
		Level:     level,
		Message:   entry.Message,
		Source:    source,
	}
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|info)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	switch strings.ToLower(matches[1]) {
	case "error":
		return "error"
	case "warn":
		return "warn"
	case "info":
		return "info"
	default:
		return ""
	}
}

// EncodeLogEntry encodes a mux entry to JSON, reporting errors to stderr
// if needed.
func EncodeLogEntry(enc *json.Encoder, stderr io.Writer, entry logmux.Entry) {
	if enc == nil {
		return
	}
	record := NewLogRecord(entry)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}

// FormatLogEntry renders a mux entry for plain-text output, prefixed with
// the stage name and source.
func FormatLogEntry(entry logmux.Entry) string {
	record := NewLogRecord(entry)
	if record.Stage == "" {
		return record.Message
	}
	if record.Source == logmux.SourceStderr {
		return fmt.Sprintf("%s! %s", record.Stage, record.Message)
	}
	return fmt.Sprintf("%s| %s", record.Stage, record.Message)
}
