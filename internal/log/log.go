package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// Setup configures the process-wide logger. debug lowers the minimum level
// to DEBUG; the default is INFO. Only the first call takes effect.
func Setup(debug bool) {
	loggerOnce.Do(func() {
		level := zerolog.InfoLevel
		if debug {
			level = zerolog.DebugLevel
		}
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02T15:04:05.000Z07:00"}
		logger = zerolog.New(writer).With().Timestamp().Logger().Level(level)
	})
}

func Debug(msg string, kv ...any) {
	Setup(false)
	appendKVs(logger.Debug(), kv...).Msg(msg)
}

func Info(msg string, kv ...any) {
	Setup(false)
	appendKVs(logger.Info(), kv...).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	Setup(false)
	appendKVs(logger.Error().Err(err), kv...).Msg(msg)
}

// appendKVs attaches key-value pairs to a zerolog event. Expects kv as
// pairs: key, value, key, value, ... Non-string keys and a trailing odd
// value are ignored.
func appendKVs(ev *zerolog.Event, kv ...any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case bool:
			ev = ev.Bool(key, v)
		default:
			ev = ev.Str(key, fmt.Sprint(v))
		}
	}
	return ev
}
