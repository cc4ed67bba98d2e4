package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("ttlkv: corrupt record")
	magic4     = [...]byte{'T', 'T', 'K', 'V'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record: magic(4) | ver(1) | expiresAt(i64 be, unix millis) | vlen(u32 be) | payload(vlen)
func EncodeRecord(expiresAt int64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(expiresAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeRecord returns the expiry and a sub-slice of b holding the payload.
// Trailing bytes after the payload are treated as corruption.
func DecodeRecord(b []byte) (expiresAt int64, payload []byte, err error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return 0, nil, ErrCorrupt
	}

	off := 5
	expiresAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}

	return expiresAt, b[off : off+vlen], nil
}

// PeekExpiry decodes only the header. Sweeps use it to avoid touching payloads.
func PeekExpiry(b []byte) (int64, error) {
	exp, _, err := DecodeRecord(b)
	return exp, err
}
