// Package logging provides categorized file-based logging for the rescue
// pipeline. Logs are written to <workspace>/.cxrescue/logs/ with a separate
// file per category so a single pipeline run can be traced stage by stage.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and wiring
	CategoryPipeline Category = "pipeline" // Orchestrator state transitions
	CategoryTriage   Category = "triage"   // Triage stage
	CategorySolution Category = "solution" // Solution stage
	CategoryAction   Category = "action"   // Action & communication stage
	CategoryLLM      Category = "llm"      // Decision-support model calls
	CategoryTools    Category = "tools"    // Collaborator API calls
	CategoryPolicy   Category = "policy"   // Policy knowledge-base search
)

// Options controls logger behavior. Zero value disables all file logging.
type Options struct {
	Enabled    bool
	Level      string          // debug, info, warn, error
	JSONFormat bool            // structured entries instead of text lines
	Categories map[string]bool // nil = all categories enabled
}

// Entry is the structured form of a single log line when JSONFormat is set.
type Entry struct {
	Timestamp int64                  `json:"ts"`
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  int
)

const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory. Should be called once at startup
// with the workspace path. When o.Enabled is false this is a silent no-op and
// every Logger becomes a no-op.
func Initialize(workspace string, o Options) error {
	optsMu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	optsMu.Unlock()

	if !o.Enabled {
		return nil
	}
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	logsDir = filepath.Join(workspace, ".cxrescue", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== Rescue Pipeline Logging Initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", o.Level)
	return nil
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.Enabled {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging is disabled or the category is filtered.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation trivial.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := Entry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

func (l *Logger) write(level int, tag, format string, args ...interface{}) {
	if l.logger == nil || logLevel > level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	optsMu.RLock()
	jsonFormat := opts.JSONFormat
	optsMu.RUnlock()
	if jsonFormat {
		l.logJSON(tag, msg)
	} else {
		l.logger.Printf("[%s] %s", tag, msg)
	}
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs an error message (always written if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Close closes all open log files. Call on shutdown.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
}

// Per-category package helpers. Stage code calls these instead of threading
// Logger handles through every constructor.

// Pipeline logs info to the pipeline category.
func Pipeline(format string, args ...interface{}) { Get(CategoryPipeline).Info(format, args...) }

// PipelineError logs an error to the pipeline category.
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }

// Triage logs info to the triage category.
func Triage(format string, args ...interface{}) { Get(CategoryTriage).Info(format, args...) }

// TriageError logs an error to the triage category.
func TriageError(format string, args ...interface{}) { Get(CategoryTriage).Error(format, args...) }

// Solution logs info to the solution category.
func Solution(format string, args ...interface{}) { Get(CategorySolution).Info(format, args...) }

// SolutionError logs an error to the solution category.
func SolutionError(format string, args ...interface{}) { Get(CategorySolution).Error(format, args...) }

// Action logs info to the action category.
func Action(format string, args ...interface{}) { Get(CategoryAction).Info(format, args...) }

// ActionError logs an error to the action category.
func ActionError(format string, args ...interface{}) { Get(CategoryAction).Error(format, args...) }

// LLM logs info to the llm category.
func LLM(format string, args ...interface{}) { Get(CategoryLLM).Info(format, args...) }

// LLMDebug logs debug to the llm category.
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }

// LLMError logs an error to the llm category.
func LLMError(format string, args ...interface{}) { Get(CategoryLLM).Error(format, args...) }

// Tools logs info to the tools category.
func Tools(format string, args ...interface{}) { Get(CategoryTools).Info(format, args...) }

// ToolsError logs an error to the tools category.
func ToolsError(format string, args ...interface{}) { Get(CategoryTools).Error(format, args...) }

// Policy logs info to the policy category.
func Policy(format string, args ...interface{}) { Get(CategoryPolicy).Info(format, args...) }
