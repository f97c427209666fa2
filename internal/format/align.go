package format

// AlignUp returns n rounded up to the allocation granularity.
//
// Example:
//
//	AlignUp(1)  = 16
//	AlignUp(16) = 16
//	AlignUp(17) = 32
func AlignUp(n uint64) uint64 {
	return (n + AlignmentMask) &^ AlignmentMask
}

// AlignPage returns n rounded up to the next page boundary.
func AlignPage(n uint64) uint64 {
	return (n + PageMask) &^ PageMask
}

// IsAligned reports whether n sits on the allocation granularity.
func IsAligned(n uint64) bool {
	return n&AlignmentMask == 0
}
