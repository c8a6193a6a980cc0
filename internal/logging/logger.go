// Package logging provides config-driven categorized logging for kwforward.
// Logging is controlled by debug_mode in the configuration - when false, no logs are written.
package logging

import (
	"fmt"
	"sync"

	"kwforward/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup and configuration
	CategoryRewrite Category = "rewrite" // Call-site rewriting
	CategoryScript  Category = "script"  // Parsing, printing and interpreting scripts
	CategoryForward Category = "forward" // Decoration and decorated calls
	CategoryWatch   Category = "watch"   // Rewriting scripts as they change
	CategoryCLI     Category = "cli"     // Command line front end
)

// Logger writes printf-style messages for one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	cfg     config.LoggingConfig
	loggers = make(map[Category]*Logger)
)

// Initialize builds the root logger from cfg. With debug_mode off every
// category logs nowhere.
func Initialize(c config.LoggingConfig) error {
	if !c.DebugMode {
		Replace(zap.NewNop(), c)
		return nil
	}

	zc := zap.NewDevelopmentConfig()
	if c.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	level := zapcore.InfoLevel
	if c.Level != "" {
		parsed, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		level = parsed
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if c.File != "" {
		zc.OutputPaths = []string{c.File}
	}

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Replace(l, c)
	BootDebug("logging initialized: level=%s format=%s", level, c.Format)
	return nil
}

// Replace installs l as the root logger with c deciding which categories log.
func Replace(l *zap.Logger, c config.LoggingConfig) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	cfg = c
	loggers = make(map[Category]*Logger)
}

// SetLogger installs l for every category. Intended for tests.
func SetLogger(l *zap.Logger) {
	Replace(l, config.LoggingConfig{DebugMode: true, Level: "debug"})
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := root
	mu.RUnlock()
	_ = l.Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return cfg.IsCategoryEnabled(string(category))
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: root.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Zap returns the structured logger behind l.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger that adds key-value context to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Rewrite logs to the rewrite category
func Rewrite(format string, args ...interface{}) {
	Get(CategoryRewrite).Info(format, args...)
}

// RewriteDebug logs debug to the rewrite category
func RewriteDebug(format string, args ...interface{}) {
	Get(CategoryRewrite).Debug(format, args...)
}

// Script logs to the script category
func Script(format string, args ...interface{}) {
	Get(CategoryScript).Info(format, args...)
}

// ScriptDebug logs debug to the script category
func ScriptDebug(format string, args ...interface{}) {
	Get(CategoryScript).Debug(format, args...)
}

// Forward logs to the forward category
func Forward(format string, args ...interface{}) {
	Get(CategoryForward).Info(format, args...)
}

// ForwardDebug logs debug to the forward category
func ForwardDebug(format string, args ...interface{}) {
	Get(CategoryForward).Debug(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debug(format, args...)
}

// CLI logs to the cli category
func CLI(format string, args ...interface{}) {
	Get(CategoryCLI).Info(format, args...)
}
