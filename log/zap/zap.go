// Package zap adapts a *zap.Logger to ttlkv.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/ttlkv"
)

var _ ttlkv.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.Named("ttlkv")}
}

func (z Logger) Debug(msg string, f ttlkv.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f ttlkv.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f ttlkv.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f ttlkv.Fields) { z.L.Error(msg, fields(f)...) }

// fields emits keys in sorted order; errors go through zap.NamedError so
// nil errors are skipped.
func fields(f ttlkv.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		case nil:
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
