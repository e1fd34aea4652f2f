package idmgmt

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"go.uber.org/zap"
)

// ErrInvalidThreshold is returned for threshold settings outside their valid range.
var ErrInvalidThreshold = errors.New("invalid threshold")

// HistoryKind names the setting a history entry records.
type HistoryKind string

// History kinds.
const (
	HistoryDetection HistoryKind = "detection"
	HistoryMerge     HistoryKind = "merge"
)

// Settings holds the detection and merge thresholds.
type Settings struct {
	DetectionThreshold float64 `json:"detection_threshold" yaml:"detection_threshold"`
	MergeThreshold     float64 `json:"merge_threshold" yaml:"merge_threshold"`
	MinPixelCount      int     `json:"min_pixel_count" yaml:"min_pixel_count"`
	MaxMergeDistance   float64 `json:"max_merge_distance" yaml:"max_merge_distance"`
	MergeOverlapRatio  float64 `json:"merge_overlap_ratio" yaml:"merge_overlap_ratio"`
}

// DefaultSettings returns the built-in threshold settings.
func DefaultSettings() Settings {
	return Settings{
		DetectionThreshold: constants.DefaultDetectionThreshold,
		MergeThreshold:     constants.DefaultMergeThreshold,
		MinPixelCount:      constants.DefaultMinPixelCount,
		MaxMergeDistance:   constants.DefaultMaxMergeDistance,
		MergeOverlapRatio:  constants.DefaultMergeOverlapRatio,
	}
}

// Validate reports the first out-of-range field.
func (s Settings) Validate() error {
	switch {
	case !inUnit(s.DetectionThreshold):
		return fmt.Errorf("%w: detection threshold %v not in [0, 1]", ErrInvalidThreshold, s.DetectionThreshold)
	case !inUnit(s.MergeThreshold):
		return fmt.Errorf("%w: merge threshold %v not in [0, 1]", ErrInvalidThreshold, s.MergeThreshold)
	case s.MinPixelCount < 0:
		return fmt.Errorf("%w: min pixel count %d is negative", ErrInvalidThreshold, s.MinPixelCount)
	case !(s.MaxMergeDistance > 0):
		return fmt.Errorf("%w: max merge distance %v must be positive", ErrInvalidThreshold, s.MaxMergeDistance)
	case !inUnit(s.MergeOverlapRatio):
		return fmt.Errorf("%w: merge overlap ratio %v not in [0, 1]", ErrInvalidThreshold, s.MergeOverlapRatio)
	}
	return nil
}

// HistoryEntry is one threshold change. AffectedIDs and AffectedPixelCount
// are filled in when a detection threshold is applied to a mask.
type HistoryEntry struct {
	Seq                int64       `json:"seq"`
	Timestamp          time.Time   `json:"timestamp"`
	Kind               HistoryKind `json:"threshold_type"`
	OldValue           float64     `json:"old_value"`
	NewValue           float64     `json:"new_value"`
	AffectedIDs        []int       `json:"affected_ids"`
	AffectedPixelCount int         `json:"affected_pixel_count"`
}

// MergeCandidate is a pair of identifiers that look like one object.
type MergeCandidate struct {
	ID1            int      `json:"id1"`
	ID2            int      `json:"id2"`
	Score          float64  `json:"similarity_score"`
	Distance       float64  `json:"distance"`
	OverlapRatio   float64  `json:"overlap_ratio"`
	SizeRatio      float64  `json:"size_ratio"`
	ConfidenceDiff *float64 `json:"confidence_diff,omitempty"`
	Reason         string   `json:"reason"`
}

// ThresholdManager owns the threshold settings and their change history.
// It is safe for concurrent use.
type ThresholdManager struct {
	mu       sync.Mutex
	settings Settings
	history  []HistoryEntry
	nextSeq  int64
	now      func() time.Time
	logger   *zap.Logger
}

// NewThresholdManager creates a manager with DefaultSettings and an empty history.
func NewThresholdManager(logger *zap.Logger) *ThresholdManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("threshold manager initialized with default settings")
	return &ThresholdManager{
		settings: DefaultSettings(),
		history:  []HistoryEntry{},
		nextSeq:  1,
		now:      time.Now,
		logger:   logger,
	}
}

// Settings returns the current settings.
func (tm *ThresholdManager) Settings() Settings {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.settings
}

// History returns a copy of the change history, oldest first.
func (tm *ThresholdManager) History() []HistoryEntry {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make([]HistoryEntry, len(tm.history))
	for i, e := range tm.history {
		e.AffectedIDs = slices.Clone(e.AffectedIDs)
		out[i] = e
	}
	return out
}

// LastEntry returns the most recent history entry.
func (tm *ThresholdManager) LastEntry() (HistoryEntry, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if len(tm.history) == 0 {
		return HistoryEntry{}, false
	}
	e := tm.history[len(tm.history)-1]
	e.AffectedIDs = slices.Clone(e.AffectedIDs)
	return e, true
}

// Restore replaces settings and history with persisted state without
// recording new history entries.
func (tm *ThresholdManager) Restore(s Settings, history []HistoryEntry) error {
	if err := s.Validate(); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.settings = s
	tm.history = slices.Clone(history)
	if tm.history == nil {
		tm.history = []HistoryEntry{}
	}
	tm.nextSeq = 1
	for _, e := range tm.history {
		tm.nextSeq = max(tm.nextSeq, e.Seq+1)
	}
	return nil
}

// SetDetectionThreshold changes the detection threshold and records the change.
func (tm *ThresholdManager) SetDetectionThreshold(v float64) error {
	if !inUnit(v) {
		return fmt.Errorf("%w: detection threshold must be in [0, 1], got %v", ErrInvalidThreshold, v)
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	old := tm.settings.DetectionThreshold
	tm.settings.DetectionThreshold = v
	tm.record(HistoryDetection, old, v)
	tm.logger.Info("detection threshold changed", zap.Float64("old", old), zap.Float64("new", v))
	return nil
}

// SetMergeThreshold changes the merge threshold and records the change.
func (tm *ThresholdManager) SetMergeThreshold(v float64) error {
	if !inUnit(v) {
		return fmt.Errorf("%w: merge threshold must be in [0, 1], got %v", ErrInvalidThreshold, v)
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	old := tm.settings.MergeThreshold
	tm.settings.MergeThreshold = v
	tm.record(HistoryMerge, old, v)
	tm.logger.Info("merge threshold changed", zap.Float64("old", old), zap.Float64("new", v))
	return nil
}

// UpdateSettings replaces all settings at once. A history entry is recorded
// for each threshold whose value changed.
func (tm *ThresholdManager) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	old := tm.settings
	tm.settings = s
	if old.DetectionThreshold != s.DetectionThreshold {
		tm.record(HistoryDetection, old.DetectionThreshold, s.DetectionThreshold)
	}
	if old.MergeThreshold != s.MergeThreshold {
		tm.record(HistoryMerge, old.MergeThreshold, s.MergeThreshold)
	}
	tm.logger.Info("threshold settings updated")
	return nil
}

// record appends a history entry. Callers hold tm.mu.
func (tm *ThresholdManager) record(kind HistoryKind, old, v float64) {
	tm.history = append(tm.history, HistoryEntry{
		Seq:         tm.nextSeq,
		Timestamp:   tm.now(),
		Kind:        kind,
		OldValue:    old,
		NewValue:    v,
		AffectedIDs: []int{},
	})
	tm.nextSeq++
}

// ApplyDetectionThreshold deletes every declared identifier whose confidence
// is below threshold. Identifiers missing from confidences count as 1.0; a
// nil confidences map falls back to the mask's own. When the latest history
// entry is a detection change, the removed identifiers and their pixel
// count are recorded on it.
func (tm *ThresholdManager) ApplyDetectionThreshold(m *frame.Mask, confidences map[int]float64, threshold float64) (*frame.Mask, error) {
	if !inUnit(threshold) {
		return nil, fmt.Errorf("%w: detection threshold must be in [0, 1], got %v", ErrInvalidThreshold, threshold)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("apply detection threshold: %w", err)
	}
	if confidences == nil {
		confidences = m.Confidences
	}

	var drop [frame.MaxObjectID + 1]bool
	var removed []int
	for _, id := range m.ObjectIDs {
		c, ok := confidences[id]
		if !ok {
			c = 1.0
		}
		if c < threshold {
			drop[id] = true
			removed = append(removed, id)
		}
	}
	out := m.Clone()
	if len(removed) == 0 {
		tm.logger.Info("no ids removed by threshold", zap.Float64("threshold", threshold))
		return out, nil
	}

	affected := 0
	for i, v := range out.Data {
		if drop[v] {
			out.Data[i] = 0
			affected++
		}
	}
	out.RemoveIDs(func(id int) bool { return drop[id] })

	tm.mu.Lock()
	if n := len(tm.history); n > 0 && tm.history[n-1].Kind == HistoryDetection {
		tm.history[n-1].AffectedIDs = slices.Clone(removed)
		tm.history[n-1].AffectedPixelCount = affected
	}
	tm.mu.Unlock()

	tm.logger.Info("removed ids below threshold",
		zap.Float64("threshold", threshold),
		zap.Ints("ids", removed),
		zap.Int("affected_pixels", affected))
	return out, nil
}

// FilterSmallIDs deletes identifiers covering fewer pixels than the
// min_pixel_count setting and returns them.
func (tm *ThresholdManager) FilterSmallIDs(m *frame.Mask) (*frame.Mask, []int, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, fmt.Errorf("filter small ids: %w", err)
	}
	minCount := tm.Settings().MinPixelCount

	var counts [frame.MaxObjectID + 1]int
	for _, v := range m.Data {
		counts[v]++
	}
	var drop [frame.MaxObjectID + 1]bool
	removed := []int{}
	for _, id := range m.ObjectIDs {
		if counts[id] < minCount {
			drop[id] = true
			removed = append(removed, id)
		}
	}
	out := m.Clone()
	if len(removed) == 0 {
		return out, removed, nil
	}
	for i, v := range out.Data {
		if drop[v] {
			out.Data[i] = 0
		}
	}
	out.RemoveIDs(func(id int) bool { return drop[id] })
	tm.logger.Info("filtered small ids", zap.Int("min_pixel_count", minCount), zap.Ints("ids", removed))
	return out, removed, nil
}

// SuggestMergeCandidates scores every pair of identifiers present in m and
// returns those scoring at least threshold, best first.
func (tm *ThresholdManager) SuggestMergeCandidates(m *frame.Mask, threshold float64) ([]MergeCandidate, error) {
	if !inUnit(threshold) {
		return nil, fmt.Errorf("%w: merge threshold must be in [0, 1], got %v", ErrInvalidThreshold, threshold)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("suggest merge candidates: %w", err)
	}
	maxDist := tm.Settings().MaxMergeDistance

	var count [frame.MaxObjectID + 1]int
	var sumX, sumY [frame.MaxObjectID + 1]float64
	w := m.Width
	for i, v := range m.Data {
		if v == 0 {
			continue
		}
		count[v]++
		sumX[v] += float64(i % w)
		sumY[v] += float64(i / w)
	}

	candidates := []MergeCandidate{}
	for i, id1 := range m.ObjectIDs {
		for _, id2 := range m.ObjectIDs[i+1:] {
			n1, n2 := count[id1], count[id2]
			if n1 == 0 || n2 == 0 {
				continue
			}
			dx := sumX[id1]/float64(n1) - sumX[id2]/float64(n2)
			dy := sumY[id1]/float64(n1) - sumY[id2]/float64(n2)
			distance := math.Hypot(dx, dy)
			if distance > maxDist {
				continue
			}
			// Two identifiers never share a pixel within one buffer.
			overlap := 0.0
			sizeRatio := float64(min(n1, n2)) / float64(max(n1, n2))
			score := constants.MergeDistanceWeight*(1-distance/maxDist) +
				constants.MergeOverlapWeight*overlap +
				constants.MergeSizeWeight*sizeRatio
			if score < threshold {
				continue
			}
			c := MergeCandidate{
				ID1:          id1,
				ID2:          id2,
				Score:        score,
				Distance:     distance,
				OverlapRatio: overlap,
				SizeRatio:    sizeRatio,
				Reason:       mergeReason(distance, overlap, score),
			}
			if len(m.Confidences) > 0 {
				diff := math.Abs(m.Confidences[id1] - m.Confidences[id2])
				c.ConfidenceDiff = &diff
			}
			candidates = append(candidates, c)
			tm.logger.Debug("merge candidate",
				zap.Int("id1", id1),
				zap.Int("id2", id2),
				zap.Float64("score", score))
		}
	}
	slices.SortStableFunc(candidates, func(a, b MergeCandidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	tm.logger.Info("found merge candidates", zap.Int("count", len(candidates)), zap.Float64("threshold", threshold))
	return candidates, nil
}

func mergeReason(distance, overlap, score float64) string {
	var reasons []string
	if distance < constants.CloseProximityDistance {
		reasons = append(reasons, "close_proximity")
	}
	if overlap > constants.HighOverlapRatio {
		reasons = append(reasons, "high_overlap")
	}
	if score > constants.HighSimilarityScore {
		reasons = append(reasons, "high_similarity")
	}
	if len(reasons) == 0 {
		return "general_similarity"
	}
	return strings.Join(reasons, ", ")
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
