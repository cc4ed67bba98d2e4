package ttlkv

// Fields is a minimal structured field map for logs. Keys used by the
// storage: "backend", "name", "key", "method", "removed", "took", "err".
type Fields map[string]any

// Logger is a tiny leveled logger. Adapters for zap, logrus and slog live
// under log/. If Logger is nil in Options, logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// MinLevel drops records below min before they reach l. Sweeps log at Debug
// every interval, which is noisy on loggers without their own level gate.
func MinLevel(l Logger, min Level) Logger {
	if l == nil {
		return NopLogger{}
	}
	return leveled{l: l, min: min}
}

type leveled struct {
	l   Logger
	min Level
}

func (x leveled) Debug(msg string, f Fields) {
	if x.min <= LevelDebug {
		x.l.Debug(msg, f)
	}
}

func (x leveled) Info(msg string, f Fields) {
	if x.min <= LevelInfo {
		x.l.Info(msg, f)
	}
}

func (x leveled) Warn(msg string, f Fields) {
	if x.min <= LevelWarn {
		x.l.Warn(msg, f)
	}
}

func (x leveled) Error(msg string, f Fields) { x.l.Error(msg, f) }
