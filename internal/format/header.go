package format

import (
	"bytes"
	"fmt"
	"time"
)

// InitHeader writes a fresh header for a heap of dataSize bytes. The root is
// left at zero and both sequence numbers start at 1.
func InitHeader(b []byte, dataSize uint64) {
	clear(b[:HeaderSize])
	copy(b[SignatureOffset:SignatureOffset+SignatureSize], Signature)
	PutU16(b, MajorVersionOffset, MajorVersion)
	PutU16(b, MinorVersionOffset, MinorVersion)
	PutU32(b, PrimarySeqOffset, 1)
	PutU32(b, SecondarySeqOffset, 1)
	PutU64(b, DataSizeOffset, dataSize)
	PutU64(b, TimeStampOffset, uint64(time.Now().UnixNano()))
	PutU32(b, AlignmentOffset, Alignment)
	PutU32(b, ChecksumOffset, Checksum(b))
}

// Checksum computes the XOR of the dwords preceding the checksum field.
func Checksum(b []byte) uint32 {
	var sum uint32
	for i := range ChecksumDwords {
		sum ^= ReadU32(b, i*DWORDSize)
	}
	return sum
}

// UpdateChecksum recomputes and stores the header checksum.
func UpdateChecksum(b []byte) {
	PutU32(b, ChecksumOffset, Checksum(b))
}

// ValidateHeader checks magic, version, checksum and that the recorded heap
// extent is a whole number of pages fitting inside fileSize.
func ValidateHeader(b []byte, fileSize int64) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, HeaderSize, len(b))
	}
	if !bytes.Equal(b[SignatureOffset:SignatureOffset+SignatureSize], Signature) {
		return ErrSignatureMismatch
	}
	if v := ReadU16(b, MajorVersionOffset); v != MajorVersion {
		return fmt.Errorf("%w: major %d", ErrVersion, v)
	}
	if got, want := ReadU32(b, ChecksumOffset), Checksum(b); got != want {
		return fmt.Errorf("%w: stored 0x%08X, computed 0x%08X", ErrChecksum, got, want)
	}
	if a := ReadU32(b, AlignmentOffset); a != Alignment {
		return fmt.Errorf("%w: alignment %d", ErrVersion, a)
	}
	dataSize := ReadU64(b, DataSizeOffset)
	if fileSize < HeaderSize || dataSize > uint64(fileSize)-HeaderSize {
		return fmt.Errorf("%w: data size %d exceeds file size %d", ErrTruncated, dataSize, fileSize)
	}
	if dataSize&PageMask != 0 {
		return fmt.Errorf("%w: data size %d is not page aligned", ErrHeaderField, dataSize)
	}
	return nil
}
