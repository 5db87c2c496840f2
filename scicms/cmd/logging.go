package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// loggers holds the main logger and the operations logger of one run
type loggers struct {
	main       *slog.Logger
	operations *slog.Logger
	files      []*os.File
}

// Close closes the log files
func (l *loggers) Close() {
	for _, f := range l.files {
		_ = f.Close()
	}
}

// initLogging opens scicms.log and scicms-operations.log under the XDG cache
// directory. With logOperations every operation is also echoed to echo.
func initLogging(logLevel string, logOperations bool, echo io.Writer) (*loggers, error) {
	level, ok := logLevelMap[strings.ToLower(logLevel)]
	if !ok {
		level = slog.LevelWarn
	}

	logDir := getXDGCacheDir()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &loggers{}
	open := func(name string) (*os.File, error) {
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.files = append(l.files, f)
		return f, nil
	}

	logFile, err := open("scicms.log")
	if err != nil {
		return nil, err
	}
	l.main = slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}))

	opsFile, err := open("scicms-operations.log")
	if err != nil {
		return nil, err
	}
	var opsHandler slog.Handler = slog.NewJSONHandler(opsFile, &slog.HandlerOptions{Level: slog.LevelInfo})
	if logOperations {
		opsHandler = &multiHandler{
			handlers: []slog.Handler{opsHandler, slog.NewTextHandler(echo, &slog.HandlerOptions{Level: slog.LevelInfo})},
		}
	}
	l.operations = slog.New(opsHandler).With("logger", "operations")

	l.main.Debug("logging initialized",
		"level", level.String(),
		"log_dir", logDir,
		"log_operations", logOperations)
	return l, nil
}

// getXDGCacheDir returns the XDG cache directory for scicms
func getXDGCacheDir() string {
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, "scicms")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "scicms")
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir, "Library", "Caches", "scicms")
	}
	return filepath.Join(homeDir, ".cache", "scicms")
}

// multiHandler fans records out to every handler that accepts their level
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}
