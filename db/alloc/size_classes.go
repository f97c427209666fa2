package alloc

import "math"

// SizeClassConfig defines the size class strategy for the free lists.
// Different configurations trade heap count against fit precision.
type SizeClassConfig struct {
	// Name for this configuration (for benchmarking and the CLI).
	Name string

	// Small blocks use linear increments.
	SmallMin       int64 // Smallest block size (format.MinBlockSize)
	SmallMax       int64 // Upper end of the linear range
	SmallIncrement int64 // Step between small classes, a multiple of 16

	// Medium blocks grow geometrically up to MediumMax; anything larger goes
	// to the large class.
	MediumMax    int64
	GrowthFactor float64
}

// Predefined configurations.
var (
	// FineGrained: 32-512 step 16 (30 classes) + 512-64K log growth (~12 classes).
	ConfigFineGrained = SizeClassConfig{
		Name:           "FineGrained",
		SmallMin:       32,
		SmallMax:       512,
		SmallIncrement: 16,
		MediumMax:      65536,
		GrowthFactor:   1.5,
	}

	// Balanced: 32-512 step 32 (15 classes) + 512-16K log growth (~9 classes).
	ConfigBalanced = SizeClassConfig{
		Name:           "Balanced",
		SmallMin:       32,
		SmallMax:       512,
		SmallIncrement: 32,
		MediumMax:      16384,
		GrowthFactor:   1.5,
	}

	// Coarse: fewer heaps, more internal fragmentation.
	ConfigCoarse = SizeClassConfig{
		Name:           "Coarse",
		SmallMin:       32,
		SmallMax:       512,
		SmallIncrement: 64,
		MediumMax:      16384,
		GrowthFactor:   2.0,
	}

	// Grammar: tuned for grammar graphs, which are dominated by small
	// fixed-size records (functions, categories, tree nodes) and short texts.
	ConfigGrammar = SizeClassConfig{
		Name:           "Grammar",
		SmallMin:       32,
		SmallMax:       256,
		SmallIncrement: 16,
		MediumMax:      16384,
		GrowthFactor:   1.3,
	}

	// DefaultConfig is used when none is specified.
	DefaultConfig = ConfigGrammar
)

// sizeClassTable holds the computed size class boundaries.
type sizeClassTable struct {
	config     SizeClassConfig
	boundaries []int64 // Upper bound for each size class
	numClasses int
}

// newSizeClassTable computes size class boundaries from config.
func newSizeClassTable(config SizeClassConfig) *sizeClassTable {
	table := &sizeClassTable{
		config:     config,
		boundaries: make([]int64, 0, 64),
	}

	// Phase 1: small blocks (linear increments)
	if config.SmallIncrement > 0 {
		for size := config.SmallMin; size < config.SmallMax; size += config.SmallIncrement {
			table.boundaries = append(table.boundaries, size+config.SmallIncrement-1)
		}
	}

	// Phase 2: medium blocks (logarithmic growth)
	if config.SmallMax < config.MediumMax {
		size := config.SmallMax
		for size < config.MediumMax {
			nextSize := int64(math.Ceil(float64(size) * config.GrowthFactor))
			if nextSize <= size {
				nextSize = size + 1 // Ensure progress
			}
			table.boundaries = append(table.boundaries, nextSize-1)
			size = nextSize
		}
	}

	table.numClasses = len(table.boundaries)
	return table
}

// getSizeClass returns the size class index for a given block size.
// Returns numClasses for sizes above every boundary (the large class).
func (t *sizeClassTable) getSizeClass(size int64) int {
	lo, hi := 0, t.numClasses-1

	for lo <= hi {
		mid := (lo + hi) / 2
		if size <= t.boundaries[mid] {
			if mid == 0 || size > t.boundaries[mid-1] {
				return mid
			}
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}

	return t.numClasses
}

// String returns the configuration name.
func (t *sizeClassTable) String() string {
	return t.config.Name
}

// NumClasses returns the number of size classes (excluding the large class).
func (t *sizeClassTable) NumClasses() int {
	return t.numClasses
}
