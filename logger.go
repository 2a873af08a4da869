package texpool

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Adapters for logrus, zap and slog live under log/.
// If Logger is nil in Options, logging is disabled.
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

// WithFields returns a Logger that adds base to every record. Fields passed per call
// win over base. A nil or NopLogger is returned unchanged.
func WithFields(l Logger, base Fields) Logger {
	if l == nil {
		return NopLogger{}
	}
	if _, nop := l.(NopLogger); nop || len(base) == 0 {
		return l
	}
	return fieldLogger{l: l, base: base}
}

type fieldLogger struct {
	l    Logger
	base Fields
}

func (x fieldLogger) merge(f Fields) Fields {
	out := make(Fields, len(x.base)+len(f))
	for k, v := range x.base {
		out[k] = v
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (x fieldLogger) Debug(msg string, f Fields) { x.l.Debug(msg, x.merge(f)) }
func (x fieldLogger) Info(msg string, f Fields)  { x.l.Info(msg, x.merge(f)) }
func (x fieldLogger) Warn(msg string, f Fields)  { x.l.Warn(msg, x.merge(f)) }
func (x fieldLogger) Error(msg string, f Fields) { x.l.Error(msg, x.merge(f)) }
