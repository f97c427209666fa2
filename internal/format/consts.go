// Package format houses the on-disk layout of a grammar store file: the
// header page, the heap block tags, and the little-endian helpers used to
// read and write them. It is kept free of any locking or mapping logic so the
// store and the allocator can share one definition of the bytes.
package format

// Signature is the four-byte magic at the start of every store file.
// Layout:
//
//	0x00  'N' 'G' 'F' 0x01
var Signature = []byte{'N', 'G', 'F', 0x01}

const (
	// HeaderSize is the size of the header page. The heap starts right after
	// it so the header can be flushed independently of the data pages.
	HeaderSize = 4096

	// PageSize is the growth and flush granularity.
	PageSize = 4096

	// PageMask is PageSize - 1.
	PageMask = PageSize - 1

	// MajorVersion and MinorVersion are written on initialisation. A store
	// with a different major version is rejected at open.
	MajorVersion = 2
	MinorVersion = 0
)

// Header field offsets.
const (
	SignatureOffset    = 0x00
	SignatureSize      = 4
	MajorVersionOffset = 0x04 // u16
	MinorVersionOffset = 0x06 // u16
	PrimarySeqOffset   = 0x08 // u32, bumped when a writer first mutates
	SecondarySeqOffset = 0x0C // u32, set equal to primary by a completed sync
	DataSizeOffset     = 0x10 // u64, heap extent in bytes
	RootOffset         = 0x18 // u64, root object offset (0 = none)
	TimeStampOffset    = 0x20 // u64, unix nanoseconds of the last sync
	AllocatedOffset    = 0x28 // u64, bytes held by allocated blocks
	AlignmentOffset    = 0x30 // u32, allocation granularity recorded at init
	FlagsOffset        = 0x34 // u32, reserved
	GenerationOffset   = 0x38 // u64, bumped by every writer scope

	// ChecksumOffset holds the XOR of every dword before it.
	ChecksumOffset = 0x1FC

	// ChecksumDwords is the number of dwords covered by the checksum.
	ChecksumDwords = ChecksumOffset / DWORDSize

	// DWORDSize is the size of a double word.
	DWORDSize = 4
)

// Heap block layout. Every block starts with a 16-byte tag:
//
//	0x00  size      int64  total block size incl. tag; negative when allocated
//	0x08  prevSize  uint64 size of the physically preceding block (0 for the first)
//
// The payload follows the tag, so payload offsets inherit the block alignment.
const (
	// Alignment is the allocation granularity. The low bits of every payload
	// offset are zero, which is what makes room for object tags.
	Alignment = 16

	// AlignmentMask is Alignment - 1 (MALLOC_ALIGN_MASK).
	AlignmentMask = Alignment - 1

	// BlockHeaderSize is the size of the boundary tag in front of a payload.
	BlockHeaderSize = 16

	// BlockSizeOffset and BlockPrevSizeOffset locate the tag fields.
	BlockSizeOffset     = 0x00
	BlockPrevSizeOffset = 0x08

	// MinBlockSize is the smallest block the allocator will create or leave
	// behind after a split.
	MinBlockSize = BlockHeaderSize + Alignment
)
