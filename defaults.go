package ttlkv

import "time"

const (
	oneDay = 24 * time.Hour

	DefaultLimit          = 1024 * 1024
	DefaultName           = "idb:storage"
	DefaultMaxExpiresTime = 8 * oneDay
	DefaultSweepInterval  = 10 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
