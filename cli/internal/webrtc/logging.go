package webrtc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// slogFactory routes pion's internal logging into slog. pion's info chatter
// is demoted to debug and trace sits below debug.
type slogFactory struct {
	log *slog.Logger
}

func newLoggerFactory(log *slog.Logger) logging.LoggerFactory {
	return &slogFactory{log: log}
}

func (f *slogFactory) NewLogger(scope string) logging.LeveledLogger {
	return &slogLogger{log: f.log.With("pion", scope)}
}

type slogLogger struct {
	log *slog.Logger
}

func (l *slogLogger) emit(level slog.Level, msg string) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}
	l.log.Log(context.Background(), level, msg)
}

func (l *slogLogger) Trace(msg string) { l.emit(slog.LevelDebug-4, msg) }
func (l *slogLogger) Tracef(format string, args ...interface{}) {
	l.emit(slog.LevelDebug-4, fmt.Sprintf(format, args...))
}
func (l *slogLogger) Debug(msg string) { l.emit(slog.LevelDebug, msg) }
func (l *slogLogger) Debugf(format string, args ...interface{}) {
	l.emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (l *slogLogger) Info(msg string) { l.emit(slog.LevelDebug, msg) }
func (l *slogLogger) Infof(format string, args ...interface{}) {
	l.emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (l *slogLogger) Warn(msg string) { l.emit(slog.LevelWarn, msg) }
func (l *slogLogger) Warnf(format string, args ...interface{}) {
	l.emit(slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (l *slogLogger) Error(msg string) { l.emit(slog.LevelError, msg) }
func (l *slogLogger) Errorf(format string, args ...interface{}) {
	l.emit(slog.LevelError, fmt.Sprintf(format, args...))
}
