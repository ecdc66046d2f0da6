// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"io"
	"log/slog"

	"github.com/rbmk-project/pktbuf/internal/simconfig"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger creates the [*slog.Logger] described by config writing to
// a rotating file or, when no file is configured, to stderr. The returned
// closer releases the file.
func newLogger(config *simconfig.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := simconfig.ParseLevel(config.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		closer io.Closer = nopCloser{}
		writer           = stderr
	)
	if config.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		}
		closer, writer = fileWriter, fileWriter
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(writer, options)
	if config.Format == "json" {
		handler = slog.NewJSONHandler(writer, options)
	}
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
