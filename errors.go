package ttlkv

import (
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/ttlkv/backend"
)

var (
	ErrValidation = errors.New("ttlkv: invalid expiry")
	ErrSizeLimit  = errors.New("ttlkv: value size exceeded")
)

// InitError and OpError originate in the backend and reach callers unchanged.
type (
	InitError = backend.InitError
	OpError   = backend.OpError
)

// ValidationError rejects a Set whose expiry is missing, not in the future,
// or beyond MaxExpiresTime. Nothing is written.
type ValidationError struct {
	Key       string
	ExpiresAt time.Time
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ttlkv: set %q: %s", e.Key, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SizeLimitError rejects a Set whose compressed payload exceeds Limit.
// Nothing is written.
type SizeLimitError struct {
	Key   string
	Size  int
	Limit int
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("ttlkv: set %q: value size %d exceeds limit %d", e.Key, e.Size, e.Limit)
}

func (e *SizeLimitError) Is(target error) bool { return target == ErrSizeLimit }

// CodecError reports a value that could not be encoded, compressed,
// decompressed or decoded.
type CodecError struct {
	Key string
	Op  string // "encode", "compress", "decompress", "decode"
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("ttlkv: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }
