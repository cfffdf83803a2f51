package rtc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory routes pion's internal logging into zerolog. Scopes not
// listed in tags only log errors.
type loggerFactory struct {
	level zerolog.Level
	tags  []string
}

func newLoggerFactory(level string, tags []string) *loggerFactory {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	return &loggerFactory{level: lvl, tags: tags}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	lvl := f.level
	if len(f.tags) > 0 && !slices.ContainsFunc(f.tags, func(t string) bool { return strings.HasPrefix(scope, t) }) {
		lvl = zerolog.ErrorLevel
	}
	l := log.With().Str("module", "rtc").Str("scope", scope).Logger().Level(lvl)
	return &leveledLogger{l: l}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (l *leveledLogger) Trace(msg string) { l.l.Trace().Msg(msg) }
func (l *leveledLogger) Tracef(format string, args ...any) {
	l.l.Trace().Msg(fmt.Sprintf(format, args...))
}
func (l *leveledLogger) Debug(msg string) { l.l.Debug().Msg(msg) }
func (l *leveledLogger) Debugf(format string, args ...any) {
	l.l.Debug().Msg(fmt.Sprintf(format, args...))
}
func (l *leveledLogger) Info(msg string) { l.l.Info().Msg(msg) }
func (l *leveledLogger) Infof(format string, args ...any) {
	l.l.Info().Msg(fmt.Sprintf(format, args...))
}
func (l *leveledLogger) Warn(msg string) { l.l.Warn().Msg(msg) }
func (l *leveledLogger) Warnf(format string, args ...any) {
	l.l.Warn().Msg(fmt.Sprintf(format, args...))
}
func (l *leveledLogger) Error(msg string) { l.l.Error().Msg(msg) }
func (l *leveledLogger) Errorf(format string, args ...any) {
	l.l.Error().Msg(fmt.Sprintf(format, args...))
}
