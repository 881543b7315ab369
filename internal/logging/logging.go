// Package logging sets up the module-scoped slog loggers used across labeltool.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu         sync.RWMutex
	baseLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	level      = new(slog.LevelVar)
	fileWriter *lumberjack.Logger
)

// Options configures the process-wide logger.
type Options struct {
	Level      slog.Level
	Console    io.Writer // defaults to os.Stderr
	FilePath   string    // optional JSON log file, rotated by size
	MaxSizeMB  int
	MaxBackups int
}

// Init replaces the base logger. Safe to call more than once; a previously
// opened log file is closed.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level.Set(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}

	var handler slog.Handler = slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})
	if opts.FilePath != "" {
		// lumberjack doesn't create directories
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		fileWriter = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			Compress:   false,
		}
		handler = &fanoutHandler{handlers: []slog.Handler{
			handler,
			slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{Level: level}),
		}}
	}

	baseLogger = slog.New(handler)
	return nil
}

// SetLevel changes the minimum level of the base logger at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetOutput redirects console output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	baseLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ForService returns a logger tagged with the given service name.
func ForService(name string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger.With("service", name)
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}
