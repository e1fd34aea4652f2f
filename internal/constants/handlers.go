// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// MaxRequestBodySize caps JSON request bodies (frames and masks are inlined)
	MaxRequestBodySize = 64 << 20

	// DefaultThumbnailSize is the edge length of generated thumbnails
	DefaultThumbnailSize = 128

	// DefaultPreviewWidth is the width of generated previews
	DefaultPreviewWidth = 320

	// DefaultPreviewHeight is the height of generated previews
	DefaultPreviewHeight = 240

	// MaxRenderDimension caps the requested width and height of thumbnails and previews
	MaxRenderDimension = 4096

	// DefaultHistoryLimit is the default number of threshold history entries returned
	DefaultHistoryLimit = 100

	// EventChannelBuffer is the buffer size for SSE event channels
	EventChannelBuffer = 100

	// MaxBatchJobs is the number of finished batch jobs kept for status queries
	MaxBatchJobs = 50
)
