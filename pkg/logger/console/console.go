package console

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ConsoleLogger implements LoggerInstance using charmbracelet/log.
// It writes to stderr unless a log file is configured.
type ConsoleLogger struct {
	logger *log.Logger
	file   *os.File
}

// ConsoleLoggerParams contains configuration for creating a ConsoleLogger.
//
// Format is "text" (default) or "json". File, when set, is opened in append
// mode and receives the output instead of stderr.
type ConsoleLoggerParams struct {
	Debug  bool
	Format string
	File   string
	Output io.Writer
}

// NewConsoleLogger creates a new console logger.
func NewConsoleLogger(params ConsoleLoggerParams) (*ConsoleLogger, error) {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}

	var formatter log.Formatter
	switch params.Format {
	case "", FormatText:
		formatter = log.TextFormatter
	case FormatJSON:
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", params.Format)
	}

	c := &ConsoleLogger{}
	var out io.Writer = os.Stderr
	if params.Output != nil {
		out = params.Output
	}
	if params.File != "" {
		f, err := os.OpenFile(params.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		c.file = f
		out = f
	}

	c.logger = log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Formatter:       formatter,
	})
	return c, nil
}

// Close closes the log file, if any.
func (c *ConsoleLogger) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// Log writes a message at the default level.
func (c *ConsoleLogger) Log(message string, keyvals ...any) {
	c.logger.Print(message, keyvals...)
}

// Info writes a message at INFO level.
func (c *ConsoleLogger) Info(message string, keyvals ...any) {
	c.logger.Info(message, keyvals...)
}

// Warn writes a message at WARN level.
func (c *ConsoleLogger) Warn(message string, keyvals ...any) {
	c.logger.Warn(message, keyvals...)
}

// Error writes a message at ERROR level.
func (c *ConsoleLogger) Error(message string, keyvals ...any) {
	c.logger.Error(message, keyvals...)
}

// Debug writes a message at DEBUG level.
func (c *ConsoleLogger) Debug(message string, keyvals ...any) {
	c.logger.Debug(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func (c *ConsoleLogger) Fatal(message string, keyvals ...any) {
	c.logger.Fatal(message, keyvals...)
}
