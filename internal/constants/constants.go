// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Threshold defaults
const (
	// DefaultDetectionThreshold is the minimum confidence an object needs to stay in a mask
	DefaultDetectionThreshold = 0.5

	// DefaultMergeThreshold is the minimum similarity score for a merge suggestion
	DefaultMergeThreshold = 0.8

	// DefaultMinPixelCount is the smallest object, in pixels, kept by small-object filtering
	DefaultMinPixelCount = 100

	// DefaultMaxMergeDistance is the largest centroid distance, in pixels, considered for merging
	DefaultMaxMergeDistance = 50.0

	// DefaultMergeOverlapRatio is the overlap ratio at which two objects are considered the same
	DefaultMergeOverlapRatio = 0.7
)

// Merge scoring
const (
	// MergeDistanceWeight weights centroid proximity in the merge score
	MergeDistanceWeight = 0.5
	// MergeOverlapWeight weights pixel overlap in the merge score
	MergeOverlapWeight = 0.3
	// MergeSizeWeight weights size similarity in the merge score
	MergeSizeWeight = 0.2

	// CloseProximityDistance is the centroid distance below which a pair is "close_proximity"
	CloseProximityDistance = 20.0
	// HighOverlapRatio is the overlap above which a pair is "high_overlap"
	HighOverlapRatio = 0.5
	// HighSimilarityScore is the score above which a pair is "high_similarity"
	HighSimilarityScore = 0.8
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel frame workers
	WorkerPoolSize = 4

	// DefaultJPEGQuality is used when writing JPEG frames
	DefaultJPEGQuality = 92
)
