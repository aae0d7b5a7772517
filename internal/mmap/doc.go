// Package mmap maps shard objects of a local blob store into memory.
//
// LocalStore reads each object once, front to back, into a fetch slot buffer;
// mapping the file and advising sequential access lets the kernel read ahead
// without an extra copy through a read buffer.
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile (advice is a no-op)
//
// Callers must not touch Bytes() after Close() returns.
package mmap
