package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// EdgeConfig configures the zerolog logger used by Gateway and Archiver
// processes.
type EdgeConfig struct {
	Level   string
	Pretty  bool
	Service string
}

// NewEdge builds a zerolog logger. Pretty enables a human-readable
// console writer for local development; production deployments leave it
// off for structured JSON lines.
func NewEdge(cfg EdgeConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	service := cfg.Service
	if service == "" {
		service = "sequencer-backbone"
	}

	return zerolog.New(out).With().Timestamp().Str("service", service).Logger()
}

// ZerologQueueLogger adapts zerolog.Logger to ratelimit.Logger.
type ZerologQueueLogger struct {
	L zerolog.Logger
}

func (z ZerologQueueLogger) Warn(msg string, fields map[string]any) {
	event := z.L.Warn()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// RecoverPanic logs a recovered panic without exiting the process. Use
// in defer blocks inside gateway goroutines.
func RecoverPanic(logger zerolog.Logger, goroutine string, fields map[string]any) {
	r := recover()
	if r == nil {
		return
	}
	event := logger.Error().
		Str("goroutine", goroutine).
		Interface("panic_value", r)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg("goroutine panic recovered")
}
