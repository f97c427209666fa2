package format

import "errors"

var (
	// ErrSignatureMismatch indicates the file does not start with the store magic.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrVersion indicates an unsupported major version.
	ErrVersion = errors.New("format: unsupported version")
	// ErrChecksum indicates the header checksum does not match its contents.
	ErrChecksum = errors.New("format: header checksum mismatch")
	// ErrHeaderField indicates a header field holds an impossible value.
	ErrHeaderField = errors.New("format: invalid header field")
)
