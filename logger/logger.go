// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides structured, leveled logging shared by every layer
// of the core. It mirrors the severity model used across the codebase:
// TRACE < DEBUG < INFO < WARNING < ERROR < OFF, implemented as custom slog
// levels so the standard library's handler machinery can be reused.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Custom severities. slog reserves -4..8 for its own four levels in steps of
// 4; TRACE sits below Debug and OFF sits above Error so it never fires.
const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelOff   slog.Level = 12
)

var levelNames = map[string]slog.Level{
	"TRACE":   LevelTrace,
	"DEBUG":   LevelDebug,
	"INFO":    LevelInfo,
	"WARNING": LevelWarn,
	"ERROR":   LevelError,
	"OFF":     LevelOff,
}

func levelString(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	case l < LevelOff:
		return "ERROR"
	default:
		return "OFF"
	}
}

// replaceLevel rewrites the attribute key "level" as "severity" with the
// custom level's name, matching the text/json shapes other tooling in this
// repo expects to parse.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		a.Key = "severity"
		a.Value = slog.StringValue(levelString(level))
	}
	if a.Key == slog.TimeKey && len(groups) == 0 {
		a.Key = "time"
	}
	return a
}

type loggerFactory struct {
	mu     sync.Mutex
	format string // "text" or "json"
	level  slog.Level
	prefix string
	writer io.Writer
}

var (
	defaultLoggerFactory = &loggerFactory{
		format: "text",
		level:  LevelInfo,
		writer: os.Stderr,
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, levelVar(LevelInfo), ""))
)

func levelVar(l slog.Level) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(l)
	return v
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}
	var h slog.Handler
	if f.format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	if prefix != "" {
		return &prefixHandler{Handler: h, prefix: prefix}
	}
	return h
}

// prefixHandler prepends a fixed string to every message, mirroring
// per-component loggers (e.g. "journal: ", "hnsw: ").
type prefixHandler struct {
	slog.Handler
	prefix string
}

func (h *prefixHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Message = h.prefix + r.Message
	return h.Handler.Handle(ctx, r)
}

func (h *prefixHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &prefixHandler{Handler: h.Handler.WithAttrs(attrs), prefix: h.prefix}
}

func (h *prefixHandler) WithGroup(name string) slog.Handler {
	return &prefixHandler{Handler: h.Handler.WithGroup(name), prefix: h.prefix}
}

func setLoggingLevel(level string, v *slog.LevelVar) {
	if l, ok := levelNames[strings.ToUpper(level)]; ok {
		v.Set(l)
	}
}

// Init configures the package-level default logger. format is "text" or
// "json"; level is one of TRACE/DEBUG/INFO/WARNING/ERROR/OFF.
func Init(format, level string) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory.format = format
	lv := levelVar(LevelInfo)
	setLoggingLevel(level, lv)
	defaultLoggerFactory.level = lv.Level()
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.writer, lv, ""))
}

// SetOutput redirects the default logger's destination, used by tests that
// want to assert on captured log lines.
func SetOutput(w io.Writer) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory.writer = w
	lv := levelVar(defaultLoggerFactory.level)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, lv, ""))
}

// SetLogFormat switches between "text" and "json" output.
func SetLogFormat(format string) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory.format = format
	lv := levelVar(defaultLoggerFactory.level)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.writer, lv, ""))
}

// Logger is a component-scoped logger, e.g. one per journal/allocator/IPC
// instance, carrying a fixed prefix and an slog.Logger to delegate to.
type Logger struct {
	component string
	slog      *slog.Logger
}

// ForComponent returns a Logger that prefixes every message with
// "<component>: ", sharing the package-level level/format/output settings.
func ForComponent(component string) *Logger {
	defaultLoggerFactory.mu.Lock()
	lv := levelVar(defaultLoggerFactory.level)
	h := defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.writer, lv, component+": ")
	defaultLoggerFactory.mu.Unlock()
	return &Logger{component: component, slog: slog.New(h)}
}

func (l *Logger) Tracef(format string, args ...any) { l.logf(LevelTrace, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// WithCorrelationID returns a Logger whose messages are tagged with corrID,
// for tracing one request/transaction across layers.
func (l *Logger) WithCorrelationID(corrID string) *Logger {
	return &Logger{component: l.component, slog: l.slog.With("correlation_id", corrID)}
}

func (l *Logger) logf(level slog.Level, format string, args ...any) {
	l.slog.Log(context.Background(), level, sprintf(format, args...))
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Package-level convenience functions matching the default logger, used by
// code that has no natural component scope (CLI entry points, top-level
// wiring).
func Tracef(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, sprintf(format, args...))
}
func Debugf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelDebug, sprintf(format, args...))
}
func Infof(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelInfo, sprintf(format, args...))
}
func Warnf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelWarn, sprintf(format, args...))
}
func Errorf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelError, sprintf(format, args...))
}
