package workload

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// KeyFormat selects how an id is encoded into key bytes. Both formats are
// fixed width, so byte order of keys equals numeric order of ids.
type KeyFormat string

const (
	KeyDecimal KeyFormat = "decimal" // 16 ASCII digits, zero padded
	KeyBinary  KeyFormat = "binary"  // 8 bytes, big endian
)

const (
	decimalKeyWidth = 16
	binaryKeyWidth  = 8
)

// ParseKeyFormat validates a key format name; empty means decimal
func ParseKeyFormat(s string) (KeyFormat, error) {
	switch KeyFormat(strings.ToLower(s)) {
	case KeyDecimal, "":
		return KeyDecimal, nil
	case KeyBinary:
		return KeyBinary, nil
	}
	return "", fmt.Errorf("unknown key format %q", s)
}

// Width returns the encoded key length
func (f KeyFormat) Width() int {
	if f == KeyBinary {
		return binaryKeyWidth
	}
	return decimalKeyWidth
}

// AppendKey appends the encoding of id to dst
func (f KeyFormat) AppendKey(dst []byte, id uint64) []byte {
	if f == KeyBinary {
		return binary.BigEndian.AppendUint64(dst, id)
	}
	var digits [20]byte
	d := strconv.AppendUint(digits[:0], id, 10)
	for i := len(d); i < decimalKeyWidth; i++ {
		dst = append(dst, '0')
	}
	return append(dst, d...)
}

// Key returns a freshly allocated key for id
func (f KeyFormat) Key(id uint64) []byte {
	return f.AppendKey(make([]byte, 0, f.Width()), id)
}

// DecodeKey is the inverse of AppendKey
func (f KeyFormat) DecodeKey(key []byte) (uint64, error) {
	if f == KeyBinary {
		if len(key) != binaryKeyWidth {
			return 0, fmt.Errorf("binary key has %d bytes, want %d", len(key), binaryKeyWidth)
		}
		return binary.BigEndian.Uint64(key), nil
	}
	return strconv.ParseUint(string(key), 10, 64)
}
