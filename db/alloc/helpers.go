package alloc

import "github.com/joshuapare/ngfkit/internal/format"

// tagSize returns the raw (signed) size stored in the tag at off.
func tagSize(data []byte, off uint64) int64 {
	return format.ReadI64(data, int(off)+format.BlockSizeOffset)
}

// tagPrev returns the prevSize stored in the tag at off.
func tagPrev(data []byte, off uint64) uint64 {
	return format.ReadU64(data, int(off)+format.BlockPrevSizeOffset)
}

func putTagSize(data []byte, off uint64, size int64) {
	format.PutI64(data, int(off)+format.BlockSizeOffset, size)
}

func putTagPrev(data []byte, off uint64, prev uint64) {
	format.PutU64(data, int(off)+format.BlockPrevSizeOffset, prev)
}

// heapEnd returns the offset one past the last heap byte as recorded in the header.
func heapEnd(data []byte) uint64 {
	return format.HeaderSize + format.ReadU64(data, format.DataSizeOffset)
}

func absSize(raw int64) int64 {
	if raw < 0 {
		return -raw
	}
	return raw
}

// Format lays out an empty heap: a single free block spanning the data size
// recorded in the header. It is called once when a store file is created.
func Format(data []byte) {
	end := heapEnd(data)
	size := end - format.HeaderSize
	if size < format.MinBlockSize {
		return
	}
	putTagSize(data, format.HeaderSize, int64(size))
	putTagPrev(data, format.HeaderSize, 0)
}
