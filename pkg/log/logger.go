package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
)

// NewContextWithLogger installs a console logger writing to w through a
// non-blocking diode buffer. Stdout is reserved for the stdio transport, so
// callers normally pass os.Stderr.
func NewContextWithLogger(ctx context.Context, debug bool, w io.Writer) (context.Context, func()) {
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return ""
	}

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if w == nil {
		w = os.Stderr
	}

	// Use a diode (ring buffer) for non-blocking logging
	// Size: 1000, Poll interval: 5ms
	wr := diode.NewWriter(w, 1000, 5*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "Logger Dropped %d messages\n", missed)
	})

	output := zerolog.ConsoleWriter{
		Out:        wr,
		NoColor:    w != os.Stderr && w != os.Stdout,
		TimeFormat: time.DateTime,
		PartsOrder: []string{
			zerolog.LevelFieldName,
			zerolog.TimestampFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		},
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		CallerWithSkipFrameCount(2).
		Logger()

	log.Logger = logger

	// Return context and a cleanup function to close the diode writer
	return log.With().Logger().WithContext(ctx), func() {
		wr.Close()
	}
}

func FromCtx(ctx context.Context) *zerolog.Logger {
	return log.Ctx(ctx)
}

// WithComponent returns ctx carrying a logger tagged with component.
func WithComponent(ctx context.Context, component string) context.Context {
	l := FromCtx(ctx).With().Str("component", component).Logger()
	return l.WithContext(ctx)
}

// PrintfLogger feeds libraries that log through Printf and Fatalf, such as
// the migration runner, into the context logger under a component tag.
type PrintfLogger struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func NewPrintfLogger(ctx context.Context, component string, level zerolog.Level) *PrintfLogger {
	return &PrintfLogger{
		logger: FromCtx(ctx).With().Str("component", component).Logger(),
		level:  level,
	}
}

func (p *PrintfLogger) Printf(format string, v ...any) {
	p.logger.WithLevel(p.level).Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf exits the process.
func (p *PrintfLogger) Fatalf(format string, v ...any) {
	p.logger.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
