// Package notify delivers user-facing sync notifications. The daemon has
// no UI of its own, so notifications go to the log by default; a desktop
// frontend can plug in its own sink.
package notify

import "github.com/robinjoseph08/golib/logger"

// Level of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Sink receives notifications.
type Sink interface {
	Notify(level Level, title, message string)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	log logger.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.New()}
}

func (s *LogSink) Notify(level Level, title, message string) {
	data := logger.Data{"title": title, "message": message}
	if level == LevelError {
		s.log.Error("notification", data)
		return
	}
	s.log.Info("notification", data)
}

// NopSink drops notifications. Used when notifications are disabled in
// settings.
type NopSink struct{}

func (NopSink) Notify(Level, string, string) {}
