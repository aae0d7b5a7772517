package record

import (
	"bytes"
	"strconv"
)

// Stats summarizes one decoded object.
type Stats struct {
	// Values is the number of values handed to the callback.
	Values int
	// Malformed is the number of non-blank, non-comment lines that failed to parse.
	Malformed int
	// DroppedPartial reports whether a trailing partial line was discarded.
	DroppedPartial bool
	// Compression is the detected encoding of the object.
	Compression Compression
}

// Parse decodes data and calls fn for every value in object order.
// If truncated is set, data is a prefix of the object and any text after the
// last newline is discarded.
func Parse(data []byte, truncated bool, fn func(int64)) (Stats, error) {
	plain, c, err := decompress(data, truncated)
	if err != nil {
		return Stats{Compression: c}, err
	}

	stats := Stats{Compression: c}
	if truncated {
		i := bytes.LastIndexByte(plain, '\n')
		if i+1 < len(plain) {
			stats.DroppedPartial = true
		}
		plain = plain[:i+1]
	}

	for len(plain) > 0 {
		var line []byte
		if i := bytes.IndexByte(plain, '\n'); i >= 0 {
			line, plain = plain[:i], plain[i+1:]
		} else {
			line, plain = plain, nil
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		v, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			stats.Malformed++
			continue
		}
		stats.Values++
		fn(v)
	}

	return stats, nil
}

// Decode is Parse collecting the values into a slice.
func Decode(data []byte, truncated bool) ([]int64, Stats, error) {
	var values []int64
	stats, err := Parse(data, truncated, func(v int64) { values = append(values, v) })
	return values, stats, err
}

// Encode writes values one per line and compresses the result with c.
func Encode(values []int64, c Compression) ([]byte, error) {
	plain := make([]byte, 0, len(values)*8)
	for _, v := range values {
		plain = strconv.AppendInt(plain, v, 10)
		plain = append(plain, '\n')
	}
	return compress(plain, c)
}
