// Package logging configures the process wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options select level, format and optional file output.
type Options struct {
	Level  string
	Format string
	// File adds a rotated log file next to stdout.
	File       string
	MaxAgeDays int
}

// Setup applies opts to the standard logrus logger. The returned closer
// flushes and closes the log file, if any.
func Setup(opts Options) (io.Closer, error) {
	return configure(logrus.StandardLogger(), os.Stdout, opts)
}

func configure(l *logrus.Logger, stdout io.Writer, opts Options) (io.Closer, error) {
	switch strings.ToLower(opts.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(level)

	if opts.File == "" {
		l.SetOutput(stdout)
		return nopCloser{}, nil
	}

	rotator := &lumberjack.Logger{
		Filename: opts.File,
		MaxAge:   opts.MaxAgeDays,
		MaxSize:  100,
		Compress: true,
	}
	l.SetOutput(io.MultiWriter(stdout, rotator))
	return rotator, nil
}

func parseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return logrus.InfoLevel, nil
	case "warning":
		return logrus.WarnLevel, nil
	}
	return logrus.ParseLevel(s)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
