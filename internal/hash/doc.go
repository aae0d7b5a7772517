// Package hash provides the checksum used by snapshot frames.
//
// Frames carry a CRC32-Castagnoli (CRC32C) trailer over header and values:
//
//	sum := hash.CRC32C(frame[:len(frame)-4])
package hash
