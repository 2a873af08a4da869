package zap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/texpool"
)

var _ texpool.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New adapts l under the "texpool" logger name.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("texpool")} }

func (z ZapLogger) Debug(msg string, f texpool.Fields) { z.write(zapcore.DebugLevel, msg, f) }
func (z ZapLogger) Info(msg string, f texpool.Fields)  { z.write(zapcore.InfoLevel, msg, f) }
func (z ZapLogger) Warn(msg string, f texpool.Fields)  { z.write(zapcore.WarnLevel, msg, f) }
func (z ZapLogger) Error(msg string, f texpool.Fields) { z.write(zapcore.ErrorLevel, msg, f) }

// write converts fields only when the level is enabled; the pool logs every stale
// drop at Debug.
func (z ZapLogger) write(lvl zapcore.Level, msg string, f texpool.Fields) {
	if ce := z.L.Check(lvl, msg); ce != nil {
		ce.Write(zf(f)...)
	}
}

func zf(f texpool.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
