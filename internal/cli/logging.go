package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/randalmurphal/taskboard/internal/config"
)

// newLogger builds the process logger. A log file, from --log-file or
// log.file, is rotated by size; otherwise logs go to stderr. The returned
// closer is never nil.
func newLogger(cfg config.LogConfig, level slog.Level, fileOverride string, stderr io.Writer) (*slog.Logger, io.Closer) {
	var (
		out    = stderr
		closer io.Closer = nopCloser{}
	)
	file := cfg.File
	if fileOverride != "" {
		file = fileOverride
	}
	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out, closer = rotated, rotated
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// stderrWriter is swapped in tests.
var stderrWriter io.Writer = os.Stderr
