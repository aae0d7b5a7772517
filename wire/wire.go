// Package wire defines the fixed-width top-K message exchanged between ranks.
//
// Frame layout, little endian:
//
//	offset  size  field
//	0       4     magic "TPK1"
//	4       4     sender rank (int32)
//	8       4     k (uint32)
//	12      8k    values (int64), snapshot order, padding last
//	12+8k   4     CRC32-C over bytes [0, 12+8k)
//
// Every message for a given K has the same width, FrameSize(K).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/treetopk/internal/hash"
)

const (
	headerSize  = 12
	trailerSize = 4
	magic       = uint32('T') | uint32('P')<<8 | uint32('K')<<16 | uint32('1')<<24
)

var (
	// ErrShortFrame is returned when a payload is smaller than its declared width.
	ErrShortFrame = errors.New("wire: short frame")
	// ErrBadMagic is returned for payloads that are not top-K frames.
	ErrBadMagic = errors.New("wire: bad magic")
	// ErrChecksum is returned when the frame checksum does not match.
	ErrChecksum = errors.New("wire: checksum mismatch")
)

// ErrWidthMismatch is returned when a frame carries a different K than expected.
type ErrWidthMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrWidthMismatch) Error() string {
	return fmt.Sprintf("wire: frame width mismatch: expected k=%d, got k=%d", e.Expected, e.Actual)
}

// Message is one node's top-K snapshot.
type Message struct {
	Sender int
	Values []int64
}

// FrameSize returns the encoded size of a message carrying k values.
func FrameSize(k int) int {
	return headerSize + 8*k + trailerSize
}

// Marshal encodes m into a new frame.
func Marshal(m Message) []byte {
	return Append(make([]byte, 0, FrameSize(len(m.Values))), m)
}

// Append encodes m and appends the frame to dst.
func Append(dst []byte, m Message) []byte {
	start := len(dst)
	dst = binary.LittleEndian.AppendUint32(dst, magic)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(m.Sender)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(m.Values)))
	for _, v := range m.Values {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(v))
	}
	sum := hash.CRC32C(dst[start:])
	return binary.LittleEndian.AppendUint32(dst, sum)
}

// Unmarshal decodes a frame that must carry exactly k values.
func Unmarshal(b []byte, k int) (Message, error) {
	if len(b) < headerSize+trailerSize {
		return Message{}, ErrShortFrame
	}
	if binary.LittleEndian.Uint32(b[0:4]) != magic {
		return Message{}, ErrBadMagic
	}
	n := int(binary.LittleEndian.Uint32(b[8:12]))
	if n != k {
		return Message{}, &ErrWidthMismatch{Expected: k, Actual: n}
	}
	size := FrameSize(n)
	if len(b) < size {
		return Message{}, ErrShortFrame
	}
	body := b[:size-trailerSize]
	if hash.CRC32C(body) != binary.LittleEndian.Uint32(b[size-trailerSize:size]) {
		return Message{}, ErrChecksum
	}

	m := Message{
		Sender: int(int32(binary.LittleEndian.Uint32(b[4:8]))),
		Values: make([]int64, n),
	}
	for i := range m.Values {
		off := headerSize + 8*i
		m.Values[i] = int64(binary.LittleEndian.Uint64(b[off : off+8]))
	}
	return m, nil
}
