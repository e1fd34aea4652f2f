package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/lib/pq"
)

// ThresholdRepository provides PostgreSQL-backed threshold storage
type ThresholdRepository struct {
	pool *Pool
}

// NewThresholdRepository creates a new PostgreSQL threshold repository
func NewThresholdRepository(pool *Pool) *ThresholdRepository {
	return &ThresholdRepository{pool: pool}
}

// SaveSettings stores the settings row, replacing any previous one
func (r *ThresholdRepository) SaveSettings(ctx context.Context, s idmgmt.Settings) error {
	query := `
		INSERT INTO threshold_settings (id, detection_threshold, merge_threshold, min_pixel_count, max_merge_distance, merge_overlap_ratio, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			detection_threshold = EXCLUDED.detection_threshold,
			merge_threshold = EXCLUDED.merge_threshold,
			min_pixel_count = EXCLUDED.min_pixel_count,
			max_merge_distance = EXCLUDED.max_merge_distance,
			merge_overlap_ratio = EXCLUDED.merge_overlap_ratio,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		s.DetectionThreshold, s.MergeThreshold, s.MinPixelCount, s.MaxMergeDistance, s.MergeOverlapRatio)
	if err != nil {
		return fmt.Errorf("save threshold settings: %w", err)
	}
	return nil
}

// LoadSettings retrieves the settings row, returns nil if none was saved
func (r *ThresholdRepository) LoadSettings(ctx context.Context) (*idmgmt.Settings, error) {
	query := `
		SELECT detection_threshold, merge_threshold, min_pixel_count, max_merge_distance, merge_overlap_ratio
		FROM threshold_settings
		WHERE id = 1
	`

	var s idmgmt.Settings
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.DetectionThreshold,
		&s.MergeThreshold,
		&s.MinPixelCount,
		&s.MaxMergeDistance,
		&s.MergeOverlapRatio,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load threshold settings: %w", err)
	}
	return &s, nil
}

// AppendHistory inserts a history entry
func (r *ThresholdRepository) AppendHistory(ctx context.Context, e idmgmt.HistoryEntry) error {
	query := `
		INSERT INTO threshold_history (seq, created_at, threshold_type, old_value, new_value, affected_ids, affected_pixel_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		e.Seq, e.Timestamp, string(e.Kind), e.OldValue, e.NewValue, pq.Int64Array(toInt64s(e.AffectedIDs)), e.AffectedPixelCount)
	if err != nil {
		return fmt.Errorf("append threshold history: %w", err)
	}
	return nil
}

// UpdateHistory rewrites the affected IDs and pixel count of the entry with e.Seq
func (r *ThresholdRepository) UpdateHistory(ctx context.Context, e idmgmt.HistoryEntry) error {
	query := `
		UPDATE threshold_history
		SET affected_ids = $2, affected_pixel_count = $3
		WHERE seq = $1
	`

	result, err := r.pool.Exec(ctx, query, e.Seq, pq.Int64Array(toInt64s(e.AffectedIDs)), e.AffectedPixelCount)
	if err != nil {
		return fmt.Errorf("update threshold history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update threshold history: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update threshold history: entry %d not found", e.Seq)
	}
	return nil
}

// ListHistory returns the newest limit entries, oldest first
func (r *ThresholdRepository) ListHistory(ctx context.Context, limit int) ([]idmgmt.HistoryEntry, error) {
	query := `
		SELECT seq, created_at, threshold_type, old_value, new_value, affected_ids, affected_pixel_count
		FROM (
			SELECT * FROM threshold_history
			ORDER BY seq DESC
			LIMIT $1
		) recent
		ORDER BY seq ASC
	`

	// LIMIT NULL returns every row
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	rows, err := r.pool.Query(ctx, query, lim)
	if err != nil {
		return nil, fmt.Errorf("list threshold history: %w", err)
	}
	defer rows.Close()

	entries := []idmgmt.HistoryEntry{}
	for rows.Next() {
		var e idmgmt.HistoryEntry
		var kind string
		var ids pq.Int64Array
		if err := rows.Scan(&e.Seq, &e.Timestamp, &kind, &e.OldValue, &e.NewValue, &ids, &e.AffectedPixelCount); err != nil {
			return nil, fmt.Errorf("scan threshold history: %w", err)
		}
		e.Kind = idmgmt.HistoryKind(kind)
		e.AffectedIDs = make([]int, len(ids))
		for i, id := range ids {
			e.AffectedIDs[i] = int(id)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threshold history: %w", err)
	}
	return entries, nil
}

func toInt64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
