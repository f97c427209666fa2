package db

import (
	"io"
	"log/slog"
	"os"

	"github.com/joshuapare/ngfkit/db/alloc"
	"github.com/joshuapare/ngfkit/db/dirty"
)

// OpenMode selects how Open treats an existing or missing file.
type OpenMode int

const (
	// CreateExclusive creates a new store and fails if the file exists.
	CreateExclusive OpenMode = iota
	// OpenOrCreate opens the file, creating and initialising it when missing.
	OpenOrCreate
	// OpenExisting opens an existing store for reading and writing.
	OpenExisting
)

// String returns the mode name.
func (m OpenMode) String() string {
	switch m {
	case CreateExclusive:
		return "create-exclusive"
	case OpenOrCreate:
		return "open-or-create"
	case OpenExisting:
		return "open-existing"
	default:
		return "unknown"
	}
}

func (m OpenMode) flags() int {
	switch m {
	case CreateExclusive:
		return os.O_RDWR | os.O_CREATE | os.O_EXCL
	case OpenOrCreate:
		return os.O_RDWR | os.O_CREATE
	default:
		return os.O_RDWR
	}
}

// Options controls store behavior.
type Options struct {
	// InitialSize is the heap size of a newly created store, rounded up to a
	// whole page.
	InitialSize int64

	// GrowChunk is the minimum number of bytes added when the heap grows.
	GrowChunk int64

	// SizeClasses selects the allocator's free-list layout. Nil uses
	// alloc.DefaultConfig.
	SizeClasses *alloc.SizeClassConfig

	// FlushMode controls how hard Sync pushes data to stable storage.
	FlushMode dirty.FlushMode

	// ProcessLock pairs the in-process lock with flock(2) on the store file,
	// so scopes also exclude scopes in other processes. It also makes each
	// scope pick up growth and allocations done by other processes.
	ProcessLock bool

	// TrackAllocationsOnly limits the pages flushed by Sync to blocks touched
	// by the allocator. Use it only when objects are never modified after
	// the writer scope that allocated them. Otherwise every writer scope
	// that changes the heap marks the whole heap dirty. Load and View do
	// not count as changes; Deref and Bytes in a writer scope do.
	TrackAllocationsOnly bool

	// Perm is the permission used when creating a file.
	Perm os.FileMode

	// Logger receives debug and warning messages. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the recommended options.
func DefaultOptions() *Options {
	return &Options{
		InitialSize: 64 * 1024,
		GrowChunk:   alloc.DefaultGrowChunk,
		FlushMode:   dirty.FlushAuto,
		Perm:        0o644,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o *Options) withDefaults() Options {
	def := DefaultOptions()
	if o == nil {
		o = def
	}
	out := *o
	if out.InitialSize <= 0 {
		out.InitialSize = def.InitialSize
	}
	if out.GrowChunk <= 0 {
		out.GrowChunk = def.GrowChunk
	}
	if out.Perm == 0 {
		out.Perm = def.Perm
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return out
}
