package ensemble

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-wide base logger. Replace it with SetLogger before
// constructing a System to change sinks or formatting process-wide.
var Logger = newDefaultLogger()

func newDefaultLogger() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).With().Timestamp().Logger()
}

// SetLogger replaces the package-wide base logger.
func SetLogger(l zerolog.Logger) {
	Logger = l
}

func loggerForLevel(base zerolog.Logger, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return base
	}
	return base.Level(lvl)
}

func actorLogger(pid *PID, actorType string) zerolog.Logger {
	return Logger.With().Str("pid", pid.String()).Str("actor_type", actorType).Logger()
}

func componentLogger(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
