// Package codec implements variable-byte encoding of non-negative integer
// sequences. Each integer is split into 7-bit groups, least-significant
// first; the high bit of every byte is set when more bytes of the same
// integer follow.
package codec

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
)

const (
	dataMask     = 0x7F
	continuation = 0x80
)

// Encode returns the vbyte encoding of xs. It fails with ErrInvalidInput on
// the first negative value.
func Encode(xs []int) ([]byte, error) {
	out := make([]byte, 0, len(xs)*2)
	for i, n := range xs {
		if n < 0 {
			return nil, fmt.Errorf("encoding value %d at index %d: %w", n, i, apperrors.ErrInvalidInput)
		}
		out = AppendUint(out, uint64(n))
	}
	return out, nil
}

// AppendUint appends the vbyte encoding of a single value to dst.
func AppendUint(dst []byte, n uint64) []byte {
	for n > dataMask {
		dst = append(dst, byte(n&dataMask)|continuation)
		n >>= 7
	}
	return append(dst, byte(n))
}

// Decode is the exact inverse of Encode. A stream whose last byte still has
// the continuation bit set fails with ErrTruncatedStream.
func Decode(data []byte) ([]int, error) {
	out := make([]int, 0, len(data))
	var (
		n     uint64
		shift uint
	)
	for i, b := range data {
		if shift > 63 {
			return nil, fmt.Errorf("value overflows at byte %d: %w", i, apperrors.ErrInvalidInput)
		}
		n |= uint64(b&dataMask) << shift
		if b&continuation != 0 {
			shift += 7
			continue
		}
		out = append(out, int(n))
		n, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("stream ends mid-integer after %d bytes: %w", len(data), apperrors.ErrTruncatedStream)
	}
	return out, nil
}
