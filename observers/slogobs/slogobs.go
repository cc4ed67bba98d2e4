// Package slogobs logs storage events through log/slog. Keys are redacted
// unless Options.Redact says otherwise; values are never logged.
package slogobs

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/ttlkv"
	"github.com/unkn0wn-root/ttlkv/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ChangeEvery uint64
	ErrorEvery  uint64
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Observer[V any] struct {
	l    *slog.Logger
	opts Options

	changeCtr atomic.Uint64
	errorCtr  atomic.Uint64
}

func New[V any](l *slog.Logger, opts Options) *Observer[V] {
	if opts.Redact == nil {
		opts.Redact = util.Redact
	}
	return &Observer[V]{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

// Listen matches ttlkv.Listener.
func (o *Observer[V]) Listen(ev ttlkv.Event[V]) {
	if o.l == nil {
		return
	}
	switch ev.Type {
	case ttlkv.ChannelChange:
		if !sample(o.opts.ChangeEvery, &o.changeCtr) {
			return
		}
		o.l.Debug("ttlkv.change",
			"db", string(ev.DB),
			"method", ev.Method,
			"key", o.key(ev.Key),
			"size", ev.Size,
			"had_old", ev.OldValue != nil)
	case ttlkv.ChannelError:
		if !sample(o.opts.ErrorEvery, &o.errorCtr) {
			return
		}
		level := slog.LevelWarn
		if ev.Method == "init" {
			level = slog.LevelError
		}
		o.l.Log(context.Background(), level, "ttlkv.error",
			"db", string(ev.DB),
			"method", ev.Method,
			"key", o.key(ev.Key),
			"err", ev.Err)
	}
}

func (o *Observer[V]) key(k string) string {
	if k == "" {
		return ""
	}
	return o.opts.Redact(k)
}
