package notify

import (
	log "github.com/sirupsen/logrus"
)

// LogHook is a logrus.Hook that republishes every log line at level >= Info
// to the built-in CLICON notification stream, percent-escaped so it survives
// any later Sprintf-style formatting downstream.
type LogHook struct {
	Bus *Bus
}

// NewLogHook returns a hook publishing to bus; install it with
// logrus.AddHook.
func NewLogHook(bus *Bus) *LogHook {
	return &LogHook{Bus: bus}
}

func (h *LogHook) Levels() []log.Level {
	return []log.Level{
		log.PanicLevel, log.FatalLevel, log.ErrorLevel,
		log.WarnLevel, log.InfoLevel,
	}
}

func (h *LogHook) Fire(entry *log.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	h.Bus.Publish(CLICONStream, levelFromLogrus(entry.Level), EscapePercent(line))
	return nil
}

func levelFromLogrus(l log.Level) Level {
	switch l {
	case log.PanicLevel, log.FatalLevel, log.ErrorLevel:
		return LevelError
	case log.WarnLevel:
		return LevelWarn
	default:
		return LevelInfo
	}
}
