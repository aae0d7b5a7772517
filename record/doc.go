// Package record decodes and encodes shard objects.
//
// A shard object is text with one base-10 signed integer per line. Blank
// lines and lines starting with '#' are ignored; anything else that does not
// parse is counted as malformed and skipped. Objects may be compressed with
// zstd or as an LZ4 frame; the format is detected from the leading magic
// bytes, so plain and compressed shards can be mixed in one dataset.
//
// Objects read into a fixed buffer may be cut short. Parse is told when that
// happened and drops the trailing partial line instead of misreading it.
package record
