// Package logging writes structured logs to a file under the config
// directory so nothing leaks into the TUI's terminal.
package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"flowchat/config"
)

// Open returns a file-backed logger. The caller owns the returned
// close function.
func Open(debug bool) (zerolog.Logger, func(), error) {
	path, err := config.GetLogPath()
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(file).Level(level).With().Timestamp().Logger()
	return logger, func() { file.Close() }, nil
}
