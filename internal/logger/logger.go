package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	*zerolog.Logger
	component string
}

// Config controls output format and level for every component logger.
type Config struct {
	Level  string // debug | info | warn | error
	Format string // console | json
	Out    io.Writer
}

var defaults = Config{Level: "info", Format: "console"}

// Configure sets the process-wide defaults used by New. It is called once from
// main before any component logger is created.
func Configure(cfg Config) {
	defaults = cfg
}

// New creates a logger for a specific component.
func New(component string) *Logger {
	return NewWithConfig(component, defaults)
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	l := zerolog.Nop()
	return &Logger{Logger: &l, component: "nop"}
}

func NewWithConfig(component string, cfg Config) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	var logger zerolog.Logger
	if strings.EqualFold(cfg.Format, "json") {
		logger = zerolog.New(out).With().Timestamp().Str("component", component).Logger()
	} else {
		cw := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
			FormatMessage: func(i interface{}) string {
				return fmt.Sprintf("[%s] %s", component, i)
			},
		}
		logger = zerolog.New(cw).With().Timestamp().Logger()
	}
	logger = logger.Level(parseLevel(cfg.Level))

	return &Logger{Logger: &logger, component: component}
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component returns a logger for a sub-component sharing this logger's output.
func (l *Logger) Component(name string) *Logger {
	if l.component == "nop" {
		return l
	}
	return New(name)
}

func (l *Logger) LogError(msg string, err error) {
	if err != nil {
		l.Error().Err(err).Msg(msg)
		return
	}
	l.Error().Msg(msg)
}
