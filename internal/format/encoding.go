package format

import "encoding/binary"

// Little-endian accessors for header fields and block tags. off is a byte
// offset into b; b must hold the whole field.

var le = binary.LittleEndian

func PutU16(b []byte, off int, v uint16) { le.PutUint16(b[off:], v) }
func PutU32(b []byte, off int, v uint32) { le.PutUint32(b[off:], v) }
func PutU64(b []byte, off int, v uint64) { le.PutUint64(b[off:], v) }
func PutI64(b []byte, off int, v int64)  { le.PutUint64(b[off:], uint64(v)) }

func ReadU16(b []byte, off int) uint16 { return le.Uint16(b[off:]) }
func ReadU32(b []byte, off int) uint32 { return le.Uint32(b[off:]) }
func ReadU64(b []byte, off int) uint64 { return le.Uint64(b[off:]) }
func ReadI64(b []byte, off int) int64  { return int64(le.Uint64(b[off:])) }
