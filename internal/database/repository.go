package database

import (
	"context"

	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
)

// ThresholdReader provides read access to persisted threshold state
type ThresholdReader interface {
	// LoadSettings returns the saved settings, or nil if none were saved yet
	LoadSettings(ctx context.Context) (*idmgmt.Settings, error)
	// ListHistory returns the newest limit entries ordered oldest first.
	// A limit <= 0 returns the whole history.
	ListHistory(ctx context.Context, limit int) ([]idmgmt.HistoryEntry, error)
}

// ThresholdStore persists threshold settings and their change history
type ThresholdStore interface {
	ThresholdReader

	// SaveSettings replaces the saved settings
	SaveSettings(ctx context.Context, s idmgmt.Settings) error
	// AppendHistory stores a new history entry keyed by its Seq
	AppendHistory(ctx context.Context, e idmgmt.HistoryEntry) error
	// UpdateHistory rewrites the affected IDs and pixel count of an existing entry.
	// Used when a detection threshold is applied after it was recorded.
	UpdateHistory(ctx context.Context, e idmgmt.HistoryEntry) error
}
