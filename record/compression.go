package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the encoding of a shard object.
type Compression uint8

const (
	// CompressionNone indicates plain text.
	CompressionNone Compression = iota
	// CompressionZstd indicates a zstd stream.
	CompressionZstd
	// CompressionLZ4 indicates an LZ4 frame.
	CompressionLZ4
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// ErrCorrupt is returned when a complete compressed object cannot be decoded.
var ErrCorrupt = errors.New("record: corrupt compressed object")

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "zstd" or "lz4". The empty string is none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("record: unknown compression %q", s)
	}
}

// Detect reports the compression of data from its magic bytes.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	_ = dec.Reset(nil)
	zstdDecoderPool.Put(dec)
}

// decompress returns the plain text of data. For a truncated object the
// longest decodable prefix is returned and decoder errors are not reported.
func decompress(data []byte, truncated bool) ([]byte, Compression, error) {
	c := Detect(data)
	switch c {
	case CompressionZstd:
		if !truncated {
			dec := getZstdDecoder()
			defer putZstdDecoder(dec)

			out, err := dec.DecodeAll(data, nil)
			if err != nil {
				return nil, c, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
			}
			return out, c, nil
		}

		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		if err := dec.Reset(bytes.NewReader(data)); err != nil {
			return nil, c, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		return readPrefix(dec, true, c)

	case CompressionLZ4:
		return readPrefix(lz4.NewReader(bytes.NewReader(data)), truncated, c)

	default:
		return data, c, nil
	}
}

func readPrefix(r io.Reader, truncated bool, c Compression) ([]byte, Compression, error) {
	var out bytes.Buffer
	_, err := out.ReadFrom(r)
	if err != nil && !truncated {
		return nil, c, fmt.Errorf("%w: %s: %v", ErrCorrupt, c, err)
	}
	return out.Bytes(), c, nil
}

// compress encodes plain text with c.
func compress(plain []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return plain, nil

	case CompressionZstd:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)
		return enc.EncodeAll(plain, nil), nil

	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		// Small blocks keep a truncated prefix decodable.
		if err := w.Apply(lz4.BlockSizeOption(lz4.Block64Kb)); err != nil {
			return nil, err
		}
		if _, err := w.Write(plain); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("record: unknown compression %s", c)
	}
}
