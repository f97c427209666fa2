package backup

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression of the image.
type Codec uint8

const (
	// CodecNone stores the image as is.
	CodecNone Codec = iota
	// CodecZstd compresses with zstd. It is the default.
	CodecZstd
	// CodecLZ4 compresses with the lz4 frame format, trading ratio for speed.
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Codec(%d)", uint8(c))
	}
}

// ParseCodec returns the codec with the given name.
func ParseCodec(s string) (Codec, error) {
	for _, c := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrCodec, s)
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// nopWriteCloser passes writes through and ignores Close.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// encoder wraps w in the codec's compressor. Closing it flushes the codec
// but does not close w.
func encoder(w io.Writer, c Codec, level int) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecZstd:
		if level <= 0 {
			level = 3
		}
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		lv := lz4Levels[min(max(level, 0), len(lz4Levels)-1)]
		if err := zw.Apply(lz4.CompressionLevelOption(lv), lz4.ChecksumOption(true)); err != nil {
			return nil, err
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrCodec, c)
	}
}

// decoder wraps r in the codec's decompressor. The returned func releases
// decoder resources.
func decoder(r io.Reader, c Codec) (io.Reader, func(), error) {
	switch c {
	case CodecNone:
		return r, func() {}, nil
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case CodecLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrCodec, c)
	}
}
