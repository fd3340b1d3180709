package debug

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/op/go-logging"
)

var stdoutLogFormat = logging.MustStringFormatter(
	`%{color:reset}%{color}%{time:2006-01-02 15:04:05.000} [%{level}] [%{module}/%{shortfunc}] %{message}`,
)

var fileLogFormat = logging.MustStringFormatter(
	`%{time:2006-01-02 15:04:05.000} [%{level}] [%{module}/%{shortfunc}] %{message}`,
)

type Options struct {
	// File is the path of the rotated log file. Empty disables file logging.
	File string
	// Stdout mirrors records to standard output. The TUI client leaves this
	// off because the terminal belongs to the UI.
	Stdout bool
	// Level is one of debug, info, notice, warning, error, critical.
	Level string
}

// Setup installs the logging backends shared by every package logger.
// With no outputs configured all records are discarded.
func Setup(opts Options) error {
	var backends []logging.Backend

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return err
		}
		w := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // Megabytes
			MaxBackups: 3,
			MaxAge:     30, // Days
		}
		backendFile := logging.NewLogBackend(w, "", 0)
		backends = append(backends, logging.NewBackendFormatter(backendFile, fileLogFormat))
	}

	if opts.Stdout {
		backendStdout := logging.NewLogBackend(os.Stdout, "", 0)
		backends = append(backends, logging.NewBackendFormatter(backendStdout, stdoutLogFormat))
	}

	if len(backends) == 0 {
		logging.SetBackend(logging.NewLogBackend(io.Discard, "", 0))
		return nil
	}

	logging.SetBackend(backends...)
	logging.SetLevel(ParseLevel(opts.Level), "")
	return nil
}

// ParseLevel maps a level name to a logging level, defaulting to DEBUG.
func ParseLevel(name string) logging.Level {
	level, err := logging.LogLevel(strings.ToUpper(strings.TrimSpace(name)))
	if err != nil {
		return logging.DEBUG
	}
	return level
}
