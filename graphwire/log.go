// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
)

// LogLevel represents the severity of a server-directed log message in the
// graphwire protocol.
type LogLevel string

const (
	// LogException is the most severe level; it marks an error batch that
	// terminates the response stream.
	LogException LogLevel = "EXCEPTION"
	// LogError indicates a recoverable error condition.
	LogError LogLevel = "ERROR"
	// LogWarn indicates a warning that may require attention.
	LogWarn LogLevel = "WARN"
	// LogInfo indicates a normal informational message.
	LogInfo LogLevel = "INFO"
	// LogDebug indicates a verbose diagnostic message.
	LogDebug LogLevel = "DEBUG"
	// LogTrace is the least severe level, used for fine-grained tracing.
	LogTrace LogLevel = "TRACE"
)

// LogMessage is a server-directed log message carried as a zero-row batch in
// a response stream.
type LogMessage struct {
	Level   LogLevel
	Message string
	Extra   string // optional JSON-encoded structured extras
}

// slogLevel maps a wire log level to a slog level.
func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogException, LogError:
		return slog.LevelError
	case LogWarn:
		return slog.LevelWarn
	case LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// forwardServerLog hands a server log batch's metadata to the client logger.
func forwardServerLog(logger *slog.Logger, meta arrow.Metadata) {
	level, _ := meta.GetValue(MetaLogLevel)
	msg, _ := meta.GetValue(MetaLogMessage)
	attrs := []any{"origin", "server"}
	if extra, ok := meta.GetValue(MetaLogExtra); ok && extra != "" {
		attrs = append(attrs, "extra", extra)
	}
	logger.Log(context.Background(), slogLevel(LogLevel(level)), msg, attrs...)
}
