package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"

	"github.com/joshuapare/ngfkit/db"
	"github.com/joshuapare/ngfkit/internal/format"
)

const (
	preambleSize = 16
	version      = 1
	chunkSize    = 64 * 1024
)

var magic = [4]byte{'N', 'G', 'F', 'B'}

var (
	// ErrBadBackup indicates a stream that is not a backup or is damaged.
	ErrBadBackup = errors.New("backup: malformed backup stream")
	// ErrCodec indicates an unknown codec.
	ErrCodec = errors.New("backup: unknown codec")
)

// Options controls Write and Restore.
type Options struct {
	// Codec compresses the image on Write. Restore reads it from the stream.
	Codec Codec

	// Level is the codec's compression level. Zero picks the codec default.
	Level int

	// BytesPerSecond limits the rate image bytes are read or written. Zero
	// means unlimited.
	BytesPerSecond int64

	// Store is used to open the restored file for validation.
	Store *db.Options
}

// DefaultOptions returns zstd at its default level with no rate limit.
func DefaultOptions() *Options {
	return &Options{Codec: CodecZstd}
}

// Result describes a finished Write or Restore.
type Result struct {
	Codec     Codec
	ImageSize int64 // header page plus heap
	Stored    int64 // bytes in the backup stream, preamble included
}

// Write streams a backup of s to w. It holds a reader scope for the whole
// copy, so writers wait until it returns.
func Write(ctx context.Context, s *db.Store, w io.Writer, opts *Options) (Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	res := Result{Codec: opts.Codec}
	cw := &countingWriter{w: w}

	err := s.Read(func(sc *db.Scope) error {
		img := sc.Image()
		res.ImageSize = int64(len(img))

		var pre [preambleSize]byte
		copy(pre[:4], magic[:])
		pre[4] = version
		pre[5] = byte(opts.Codec)
		format.PutU64(pre[:], 8, uint64(len(img)))
		if _, err := cw.Write(pre[:]); err != nil {
			return err
		}

		enc, err := encoder(cw, opts.Codec, opts.Level)
		if err != nil {
			return err
		}
		lim := newLimiter(opts.BytesPerSecond)

		// The header goes out marked synced: the image is a complete state.
		hdr := make([]byte, format.HeaderSize)
		copy(hdr, img[:format.HeaderSize])
		format.PutU32(hdr, format.SecondarySeqOffset, format.ReadU32(hdr, format.PrimarySeqOffset))
		format.UpdateChecksum(hdr)

		if err := copyChunks(ctx, enc, hdr, lim); err != nil {
			_ = enc.Close()
			return err
		}
		if err := copyChunks(ctx, enc, img[format.HeaderSize:], lim); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	})
	res.Stored = cw.n
	if err != nil {
		return res, fmt.Errorf("backup %s: %w", s, err)
	}
	s.Logger().Debug("wrote backup", "codec", res.Codec, "image", res.ImageSize, "stored", res.Stored)
	return res, nil
}

// Restore reads a backup from r into a new file at path, which must not
// exist, and validates it by opening the result. On failure the file is
// removed.
func Restore(ctx context.Context, r io.Reader, path string, opts *Options) (res Result, err error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	cr := &countingReader{r: r}

	var pre [preambleSize]byte
	if _, err := io.ReadFull(cr, pre[:]); err != nil {
		return res, fmt.Errorf("%w: preamble: %w", ErrBadBackup, err)
	}
	if [4]byte(pre[:4]) != magic {
		return res, fmt.Errorf("%w: bad magic %q", ErrBadBackup, pre[:4])
	}
	if pre[4] != version {
		return res, fmt.Errorf("%w: version %d", ErrBadBackup, pre[4])
	}
	res.Codec = Codec(pre[5])
	size := format.ReadU64(pre[:], 8)
	if size < format.HeaderSize || size&format.PageMask != 0 {
		return res, fmt.Errorf("%w: image size %d", ErrBadBackup, size)
	}
	res.ImageSize = int64(size)

	dec, release, err := decoder(cr, res.Codec)
	if err != nil {
		return res, err
	}
	defer release()

	perm := os.FileMode(0o644)
	if opts.Store != nil && opts.Store.Perm != 0 {
		perm = opts.Store.Perm
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return res, db.SystemError("restore", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err := copyImage(ctx, f, dec, int64(size), newLimiter(opts.BytesPerSecond)); err != nil {
		_ = f.Close()
		return res, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return res, db.SystemError("restore", path, err)
	}
	if err := f.Close(); err != nil {
		return res, db.SystemError("restore", path, err)
	}
	res.Stored = cr.n

	s, err := db.Open(path, db.OpenExisting, opts.Store)
	if err != nil {
		return res, err
	}
	defer s.Close()
	if _, err := s.Verify(); err != nil {
		return res, err
	}
	s.Logger().Debug("restored backup", "codec", res.Codec, "image", res.ImageSize)
	return res, nil
}

// copyImage writes exactly size bytes from r to f.
func copyImage(ctx context.Context, f *os.File, r io.Reader, size int64, lim *rate.Limiter) error {
	buf := make([]byte, chunkSize)
	for done := int64(0); done < size; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int(min(int64(len(buf)), size-done))
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return fmt.Errorf("%w: image truncated at %d of %d bytes: %w", ErrBadBackup, done, size, err)
		}
		if err := wait(ctx, lim, n); err != nil {
			return err
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return db.SystemError("restore", f.Name(), err)
		}
		done += int64(n)
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n != 0 {
		return fmt.Errorf("%w: data after image", ErrBadBackup)
	}
	return nil
}

// copyChunks writes b to w in chunks, checking ctx and the limiter between
// chunks.
func copyChunks(ctx context.Context, w io.Writer, b []byte, lim *rate.Limiter) error {
	for len(b) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(b), chunkSize)
		if err := wait(ctx, lim, n); err != nil {
			return err
		}
		if _, err := w.Write(b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func newLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), int(max(bytesPerSecond, chunkSize)))
}

func wait(ctx context.Context, lim *rate.Limiter, n int) error {
	if lim == nil {
		return nil
	}
	return lim.WaitN(ctx, n)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
