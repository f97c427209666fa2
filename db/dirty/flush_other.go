//go:build !unix

package dirty

import "context"

// writeBacker is implemented by regions that hold a copy of the file rather
// than a mapping of it.
type writeBacker interface {
	WriteBack(off, n int64) error
	Sync() error
}

func flushRanges(ctx context.Context, t Target, _ []byte, ranges []Range) error {
	wb, ok := t.(writeBacker)
	if !ok {
		return nil
	}
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.WriteBack(r.Off, r.Len); err != nil {
			return err
		}
	}
	return nil
}

func flushHeader(t Target, header []byte) error {
	wb, ok := t.(writeBacker)
	if !ok {
		return nil
	}
	return wb.WriteBack(0, int64(len(header)))
}

func fdatasync(t Target, _ bool) error {
	wb, ok := t.(writeBacker)
	if !ok {
		return nil
	}
	return wb.Sync()
}
