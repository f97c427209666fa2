package db

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/ngfkit/internal/format"
)

// Offset is a byte offset from the start of a store's mapping. Zero is null.
type Offset uint64

// TagLimit is the number of distinct tags an Object can carry.
const TagLimit = format.Alignment

// Ref is a typed reference to an object of type T inside a store.
//
// Refs cannot be built from integers outside this package. They come from
// the allocator (Malloc, MallocSize), from the root slot, from Untagged, or
// from a Ref stored in a heap object. The zero value is the null reference.
//
// T must be a fixed-size type without Go pointers, since its bytes live in
// the mapped file.
type Ref[T any] struct {
	off Offset
}

// Offset returns the raw offset.
func (r Ref[T]) Offset() Offset { return r.off }

// IsNull reports whether r is the null reference.
func (r Ref[T]) IsNull() bool { return r.off == 0 }

// Equal reports whether r and o name the same object.
func (r Ref[T]) Equal(o Ref[T]) bool { return r.off == o.off }

func (r Ref[T]) String() string { return fmt.Sprintf("ref(0x%X)", uint64(r.off)) }

// Object is the on-disk form of a variant reference: an aligned offset with
// a small type tag packed into its low bits.
type Object struct {
	v uint64
}

// Tagged packs tag into the low bits of r. It panics unless tag < TagLimit.
func Tagged[T any](r Ref[T], tag uint8) Object {
	if tag >= TagLimit {
		panic(fmt.Sprintf("ngf: tag %d out of range [0,%d)", tag, TagLimit))
	}
	if uint64(r.off)&format.AlignmentMask != 0 {
		panic(fmt.Sprintf("ngf: tagging unaligned offset 0x%X", uint64(r.off)))
	}
	return Object{v: uint64(r.off) | uint64(tag)}
}

// Untagged masks the tag off o and returns the reference it carries.
func Untagged[T any](o Object) Ref[T] {
	return Ref[T]{off: Offset(o.v &^ format.AlignmentMask)}
}

// GetTag returns the tag packed into o.
func GetTag(o Object) uint8 {
	return uint8(o.v & format.AlignmentMask)
}

// IsNull reports whether o carries the null reference.
func (o Object) IsNull() bool { return o.v&^format.AlignmentMask == 0 }

// Offset returns the untagged offset.
func (o Object) Offset() Offset { return Offset(o.v &^ format.AlignmentMask) }

func (o Object) String() string {
	return fmt.Sprintf("obj(0x%X/%d)", uint64(o.Offset()), GetTag(o))
}

// Deref resolves r against the mapping bound to sc. In a writer scope the
// result may be written through, so the call opens the transaction.
//
// It panics if sc has ended, if r is null or misaligned, or if r does not
// name an allocated block large enough for a T.
func Deref[T any](sc *Scope, r Ref[T]) *T {
	var zero T
	data := sc.checkRef(uint64(r.off), uint64(unsafe.Sizeof(zero)), true)
	return (*T)(unsafe.Pointer(&data[r.off]))
}

// Load returns a copy of the object r names. It panics like Deref but never
// counts as a change, so a writer scope that only loads stays clean.
func Load[T any](sc *Scope, r Ref[T]) T {
	var zero T
	data := sc.checkRef(uint64(r.off), uint64(unsafe.Sizeof(zero)), false)
	return *(*T)(unsafe.Pointer(&data[r.off]))
}

// Bytes returns n bytes of the object r names, for variable-size payloads.
func Bytes[T any](sc *Scope, r Ref[T], n uint64) []byte {
	data := sc.checkRef(uint64(r.off), n, true)
	return data[r.off : uint64(r.off)+n : uint64(r.off)+n]
}

// View is Bytes for readers: the result must not be written, and the call
// never counts as a change.
func View[T any](sc *Scope, r Ref[T], n uint64) []byte {
	data := sc.checkRef(uint64(r.off), n, false)
	return data[r.off : uint64(r.off)+n : uint64(r.off)+n]
}

// FromPtr returns the reference for p, which must point into the mapping
// bound to sc. It panics otherwise.
func FromPtr[T any](sc *Scope, p *T) Ref[T] {
	data := sc.bytes()
	base := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	addr := uintptr(unsafe.Pointer(p))
	if addr < base+format.HeaderSize || addr >= base+uintptr(len(data)) {
		panic(fmt.Sprintf("ngf: pointer %#x outside mapping [%#x,%#x)", addr, base, base+uintptr(len(data))))
	}
	return Ref[T]{off: Offset(addr - base)}
}

// Relocate translates p, captured before the most recent grow of sc's
// store, into the current mapping.
func Relocate[T any](sc *Scope, p *T) *T {
	return (*T)(sc.Relocate(unsafe.Pointer(p)))
}

// refAt mints a Ref from a stored offset.
func refAt[T any](off Offset) Ref[T] {
	return Ref[T]{off: off}
}
