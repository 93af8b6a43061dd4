package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	Service      string `split_words:"true" default:"food-delivery-assistant"`
}

var DefaultConfig = Config{
	Service: "food-delivery-assistant",
}

// New builds a logger writing to w: JSON lines unless PrettyFormat is set,
// info level unless Debug is set, with caller and error stacks attached.
func New(conf Config, w io.Writer) zerolog.Logger {
	if conf.PrettyFormat {
		w = zerolog.ConsoleWriter{Out: w}
	}

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if conf.Service != "" {
		ctx = ctx.Str("service", conf.Service)
	}
	return ctx.Caller().Stack().Logger()
}

// Init replaces the global logger. With no argument DefaultConfig is used.
func Init(opts ...Config) {
	conf := DefaultConfig
	if len(opts) > 0 {
		conf = opts[0]
	}

	log.Logger = New(conf, os.Stdout)
	zerolog.DefaultContextLogger = &log.Logger
}
