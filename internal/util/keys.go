package util

import (
	"crypto/sha256"
	"encoding/hex"
)

const prefix = "ttlkv:"

// AreaKey is the store-level name of a storage area.
func AreaKey(name string) string { return prefix + "area:" + name }

// SchemaKey marks an area as provisioned.
func SchemaKey(name string) string { return prefix + "schema:" + name }

// Redact returns a short stable digest of key (first 8 bytes of SHA-256, hex).
func Redact(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
