// Package compress turns a flattened postings block into the bytes stored
// in the segment blob area. The mode is a closed set: NONE keeps a JSON text
// encoding, CODEC applies vbyte, GENERIC runs zlib over the JSON text.
package compress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
)

type Mode int

const (
	None Mode = iota
	Codec
	Generic
)

func (m Mode) String() string {
	switch m {
	case None:
		return "NONE"
	case Codec:
		return "CODEC"
	case Generic:
		return "GENERIC"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the canonical names plus the legacy CODE/CLIB tags.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return None, nil
	case "CODEC", "CODE", "VBYTE":
		return Codec, nil
	case "GENERIC", "CLIB", "ZLIB":
		return Generic, nil
	}
	return None, fmt.Errorf("unknown compression mode %q: %w", s, apperrors.ErrInvalidInput)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Compressor encodes and decodes flattened integer blocks for one mode.
type Compressor interface {
	Mode() Mode
	Encode(xs []int) ([]byte, error)
	Decode(data []byte) ([]int, error)
}

// New returns the Compressor for m. Callers select it once per build or
// load and pass it along.
func New(m Mode) (Compressor, error) {
	switch m {
	case None:
		return textCompressor{}, nil
	case Codec:
		return vbyteCompressor{}, nil
	case Generic:
		return zlibCompressor{level: zlib.DefaultCompression}, nil
	}
	return nil, fmt.Errorf("compressor for %s: %w", m, apperrors.ErrInvalidInput)
}

type textCompressor struct{}

func (textCompressor) Mode() Mode { return None }

func (textCompressor) Encode(xs []int) ([]byte, error) {
	if err := checkNonNegative(xs); err != nil {
		return nil, err
	}
	return marshalInts(xs)
}

func (textCompressor) Decode(data []byte) ([]int, error) {
	return unmarshalInts(data)
}

type vbyteCompressor struct{}

func (vbyteCompressor) Mode() Mode { return Codec }

func (vbyteCompressor) Encode(xs []int) ([]byte, error) {
	return codec.Encode(xs)
}

func (vbyteCompressor) Decode(data []byte) ([]int, error) {
	return codec.Decode(data)
}

type zlibCompressor struct {
	level int
}

func (zlibCompressor) Mode() Mode { return Generic }

func (z zlibCompressor) Encode(xs []int) ([]byte, error) {
	if err := checkNonNegative(xs); err != nil {
		return nil, err
	}
	raw, err := marshalInts(xs)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, z.level)
	if err != nil {
		return nil, fmt.Errorf("creating zlib writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compressing block: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finishing zlib stream: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibCompressor) Decode(data []byte) ([]int, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening zlib stream: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("decompressing block: %w", apperrors.ErrTruncatedStream)
		}
		return nil, fmt.Errorf("decompressing block: %w", err)
	}
	return unmarshalInts(raw)
}

func checkNonNegative(xs []int) error {
	for i, n := range xs {
		if n < 0 {
			return fmt.Errorf("value %d at index %d: %w", n, i, apperrors.ErrInvalidInput)
		}
	}
	return nil
}

func marshalInts(xs []int) ([]byte, error) {
	if xs == nil {
		xs = []int{}
	}
	data, err := json.Marshal(xs)
	if err != nil {
		return nil, fmt.Errorf("marshaling block: %w", err)
	}
	return data, nil
}

func unmarshalInts(data []byte) ([]int, error) {
	var xs []int
	if err := json.Unmarshal(data, &xs); err != nil {
		return nil, fmt.Errorf("parsing block text: %w", err)
	}
	return xs, nil
}
