package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cardscan/internal/config"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Logger provides leveled logging (debug/info/warning/error) to per-level files
// and to the console.
type Logger struct {
	debugLog   *slog.Logger
	infoLog    *slog.Logger
	warningLog *slog.Logger
	errorLog   *slog.Logger
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logger := &Logger{
		logDir: config.LogDirectory,
	}

	logger.setupLoggers()
	return logger
}

// NewWriter creates a console-only Logger writing to w.
func NewWriter(w io.Writer) *Logger {
	console := consoleHandler(w, slog.LevelDebug)
	return &Logger{
		debugLog:   slog.New(console),
		infoLog:    slog.New(console),
		warningLog: slog.New(console),
		errorLog:   slog.New(console),
	}
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers() {
	infoFile := l.openLogFile(filepath.Join(l.logDir, "info.log"))
	warningFile := l.openLogFile(filepath.Join(l.logDir, "warning.log"))
	errorFile := l.openLogFile(filepath.Join(l.logDir, "error.log"))

	l.debugLog = slog.New(consoleHandler(os.Stdout, slog.LevelDebug))
	l.infoLog = slog.New(slogmulti.Fanout(consoleHandler(os.Stdout, slog.LevelInfo), fileHandler(infoFile)))
	l.warningLog = slog.New(slogmulti.Fanout(consoleHandler(os.Stdout, slog.LevelWarn), fileHandler(warningFile)))
	l.errorLog = slog.New(slogmulti.Fanout(consoleHandler(os.Stderr, slog.LevelError), fileHandler(errorFile)))
}

func consoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	})
}

func fileHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

// Debug writes a formatted debug-level log entry to the console.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.write(l.debugLog, slog.LevelDebug, format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(l.infoLog, slog.LevelInfo, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.write(l.warningLog, slog.LevelWarn, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(l.errorLog, slog.LevelError, format, v...)
}

func (l *Logger) write(target *slog.Logger, level slog.Level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	target.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// CleanLogs truncates the named log file.
func (l *Logger) CleanLogs(fileName string) {
	filePath := filepath.Join(l.logDir, fileName)
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return
	}
	defer file.Close()

	l.Info("File %s has been cleared at %s", fileName, time.Now().Format(time.RFC3339))
}
