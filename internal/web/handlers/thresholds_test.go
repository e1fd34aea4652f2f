package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/kozaktomas/frame-redactor/internal/database/mock"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"go.uber.org/zap"
)

func createThresholdsHandlerForTest(store *mock.MockThresholdStore) (*ThresholdsHandler, *idmgmt.ThresholdManager) {
	tm := idmgmt.NewThresholdManager(zap.NewNop())
	if store == nil {
		return NewThresholdsHandler(tm, nil, zap.NewNop()), tm
	}
	return NewThresholdsHandler(tm, store, zap.NewNop()), tm
}

func ptrFloat(v float64) *float64 { return &v }

func TestThresholdsHandler_Get(t *testing.T) {
	handler, _ := createThresholdsHandlerForTest(nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/thresholds", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var s idmgmt.Settings
	parseJSONResponse(t, recorder, &s)
	if s != idmgmt.DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", s)
	}
}

func TestThresholdsHandler_SetDetectionPersists(t *testing.T) {
	store := mock.NewMockThresholdStore()
	handler, tm := createThresholdsHandlerForTest(store)

	recorder := httptest.NewRecorder()
	handler.SetDetection(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds/detection", ThresholdValueRequest{Value: ptrFloat(0.7)}))

	assertStatusCode(t, recorder, http.StatusOK)
	if got := tm.Settings().DetectionThreshold; got != 0.7 {
		t.Errorf("detection threshold = %v, want 0.7", got)
	}

	saved, err := store.LoadSettings(context.Background())
	if err != nil || saved == nil || saved.DetectionThreshold != 0.7 {
		t.Fatalf("saved settings = %+v, err %v", saved, err)
	}
	history, _ := store.ListHistory(context.Background(), 0)
	if len(history) != 1 || history[0].Kind != idmgmt.HistoryDetection || history[0].OldValue != 0.5 {
		t.Errorf("persisted history = %+v", history)
	}

	// a second change appends only the new entry
	recorder = httptest.NewRecorder()
	handler.SetMerge(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds/merge", ThresholdValueRequest{Value: ptrFloat(0.6)}))
	assertStatusCode(t, recorder, http.StatusOK)
	history, _ = store.ListHistory(context.Background(), 0)
	if len(history) != 2 || history[1].Kind != idmgmt.HistoryMerge {
		t.Errorf("persisted history = %+v", history)
	}
}

func TestThresholdsHandler_SetValueErrors(t *testing.T) {
	handler, tm := createThresholdsHandlerForTest(nil)

	tests := []struct {
		name string
		body ThresholdValueRequest
	}{
		{"missing value", ThresholdValueRequest{}},
		{"above one", ThresholdValueRequest{Value: ptrFloat(1.5)}},
		{"negative", ThresholdValueRequest{Value: ptrFloat(-0.1)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.SetDetection(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds/detection", tc.body))
			assertStatusCode(t, recorder, http.StatusBadRequest)
		})
	}
	if len(tm.History()) != 0 {
		t.Errorf("rejected values must not be recorded, got %v", tm.History())
	}
}

func TestThresholdsHandler_Update(t *testing.T) {
	store := mock.NewMockThresholdStore()
	handler, tm := createThresholdsHandlerForTest(store)

	s := idmgmt.DefaultSettings()
	s.DetectionThreshold = 0.3
	s.MergeThreshold = 0.9
	s.MinPixelCount = 5

	recorder := httptest.NewRecorder()
	handler.Update(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds", s))

	assertStatusCode(t, recorder, http.StatusOK)
	if tm.Settings() != s {
		t.Errorf("settings = %+v, want %+v", tm.Settings(), s)
	}
	history, _ := store.ListHistory(context.Background(), 0)
	if len(history) != 2 {
		t.Errorf("expected 2 persisted entries, got %d", len(history))
	}

	t.Run("invalid", func(t *testing.T) {
		bad := s
		bad.MaxMergeDistance = 0
		recorder := httptest.NewRecorder()
		handler.Update(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds", bad))
		assertStatusCode(t, recorder, http.StatusBadRequest)
		if tm.Settings() != s {
			t.Error("invalid update must leave settings unchanged")
		}
	})
}

func TestThresholdsHandler_ApplyBackfillsHistory(t *testing.T) {
	store := mock.NewMockThresholdStore()
	handler, tm := createThresholdsHandlerForTest(store)

	recorder := httptest.NewRecorder()
	handler.SetDetection(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds/detection", ThresholdValueRequest{Value: ptrFloat(0.7)}))
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = httptest.NewRecorder()
	handler.Apply(recorder, jsonRequest(t, "POST", "/api/v1/thresholds/apply", ThresholdMaskRequest{Mask: objectsMask()}))

	assertStatusCode(t, recorder, http.StatusOK)
	var result ThresholdMaskResponse
	parseJSONResponse(t, recorder, &result)
	if !slices.Equal(result.RemovedIDs, []int{2}) {
		t.Errorf("removed_ids = %v, want [2]", result.RemovedIDs)
	}
	if !slices.Equal(result.Mask.ObjectIDs, []int{1, 3}) {
		t.Errorf("object_ids = %v, want [1 3]", result.Mask.ObjectIDs)
	}

	last, _ := tm.LastEntry()
	if !slices.Equal(last.AffectedIDs, []int{2}) || last.AffectedPixelCount != 8 {
		t.Errorf("in-memory entry = %+v", last)
	}
	history, _ := store.ListHistory(context.Background(), 0)
	if len(history) != 1 || !slices.Equal(history[0].AffectedIDs, []int{2}) || history[0].AffectedPixelCount != 8 {
		t.Errorf("persisted entry = %+v", history)
	}
}

func TestThresholdsHandler_ApplyExplicitThreshold(t *testing.T) {
	handler, tm := createThresholdsHandlerForTest(nil)

	recorder := httptest.NewRecorder()
	handler.Apply(recorder, jsonRequest(t, "POST", "/api/v1/thresholds/apply", ThresholdMaskRequest{
		Mask:        objectsMask(),
		Confidences: map[int]float64{1: 0.1},
		Threshold:   ptrFloat(0.5),
	}))

	assertStatusCode(t, recorder, http.StatusOK)
	var result ThresholdMaskResponse
	parseJSONResponse(t, recorder, &result)
	// ids missing from the given map count as fully confident
	if !slices.Equal(result.RemovedIDs, []int{1}) {
		t.Errorf("removed_ids = %v, want [1]", result.RemovedIDs)
	}
	if len(tm.History()) != 0 {
		t.Error("applying a threshold must not record a history entry")
	}

	t.Run("out of range", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.Apply(recorder, jsonRequest(t, "POST", "/api/v1/thresholds/apply", ThresholdMaskRequest{
			Mask: objectsMask(), Threshold: ptrFloat(2),
		}))
		assertStatusCode(t, recorder, http.StatusBadRequest)
	})
}

func TestThresholdsHandler_PersistFailureIsNotFatal(t *testing.T) {
	store := mock.NewMockThresholdStore()
	store.SaveSettingsError = errors.New("connection refused")
	handler, tm := createThresholdsHandlerForTest(store)

	recorder := httptest.NewRecorder()
	handler.SetMerge(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds/merge", ThresholdValueRequest{Value: ptrFloat(0.4)}))

	assertStatusCode(t, recorder, http.StatusOK)
	if tm.Settings().MergeThreshold != 0.4 {
		t.Error("in-memory settings must change even when the store fails")
	}

	// once the store recovers the pending entry is written
	store.SaveSettingsError = nil
	recorder = httptest.NewRecorder()
	handler.SetMerge(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds/merge", ThresholdValueRequest{Value: ptrFloat(0.45)}))
	assertStatusCode(t, recorder, http.StatusOK)
	history, _ := store.ListHistory(context.Background(), 0)
	if len(history) != 2 || history[0].NewValue != 0.4 || history[1].NewValue != 0.45 {
		t.Errorf("persisted history = %+v", history)
	}
}

func TestThresholdsHandler_FilterSmall(t *testing.T) {
	handler, tm := createThresholdsHandlerForTest(nil)
	s := tm.Settings()
	s.MinPixelCount = 9
	if err := tm.UpdateSettings(s); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	recorder := httptest.NewRecorder()
	handler.FilterSmall(recorder, jsonRequest(t, "POST", "/api/v1/thresholds/filter-small", ThresholdMaskRequest{Mask: objectsMask()}))

	assertStatusCode(t, recorder, http.StatusOK)
	var result ThresholdMaskResponse
	parseJSONResponse(t, recorder, &result)
	if !slices.Equal(result.RemovedIDs, []int{2}) {
		t.Errorf("removed_ids = %v, want [2]", result.RemovedIDs)
	}
}

func TestThresholdsHandler_Candidates(t *testing.T) {
	handler, _ := createThresholdsHandlerForTest(nil)

	t.Run("none above threshold", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.Candidates(recorder, jsonRequest(t, "POST", "/api/v1/thresholds/candidates", ThresholdMaskRequest{
			Mask: objectsMask(), Threshold: ptrFloat(1),
		}))

		assertStatusCode(t, recorder, http.StatusOK)
		var result struct {
			Threshold  float64                 `json:"threshold"`
			Candidates []idmgmt.MergeCandidate `json:"candidates"`
		}
		parseJSONResponse(t, recorder, &result)
		if result.Candidates == nil || len(result.Candidates) != 0 {
			t.Errorf("expected empty candidate list, got %v", result.Candidates)
		}
		if result.Threshold != 1 {
			t.Errorf("threshold = %v, want 1", result.Threshold)
		}
	})

	t.Run("adjacent boxes", func(t *testing.T) {
		m := boxMask(20, 10, 2, 2, 7, 7, 1)
		for y := 2; y <= 7; y++ {
			for x := 8; x <= 13; x++ {
				m.Data[y*20+x] = 2
			}
		}
		m.ObjectIDs = []int{1, 2}

		recorder := httptest.NewRecorder()
		handler.Candidates(recorder, jsonRequest(t, "POST", "/api/v1/thresholds/candidates", ThresholdMaskRequest{
			Mask: m, Threshold: ptrFloat(0),
		}))

		assertStatusCode(t, recorder, http.StatusOK)
		var result struct {
			Candidates []idmgmt.MergeCandidate `json:"candidates"`
		}
		parseJSONResponse(t, recorder, &result)
		if len(result.Candidates) != 1 || result.Candidates[0].ID1 != 1 || result.Candidates[0].ID2 != 2 {
			t.Errorf("candidates = %+v", result.Candidates)
		}
	})
}

func TestThresholdsHandler_History(t *testing.T) {
	handler, tm := createThresholdsHandlerForTest(nil)
	for _, v := range []float64{0.1, 0.2, 0.3} {
		if err := tm.SetDetectionThreshold(v); err != nil {
			t.Fatalf("SetDetectionThreshold: %v", err)
		}
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLen    int
	}{
		{"default", "", http.StatusOK, 3},
		{"limited", "?limit=2", http.StatusOK, 2},
		{"all", "?limit=0", http.StatusOK, 3},
		{"negative", "?limit=-1", http.StatusBadRequest, 0},
		{"garbage", "?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.History(recorder, httptest.NewRequest("GET", "/api/v1/thresholds/history"+tc.query, nil))

			assertStatusCode(t, recorder, tc.wantStatus)
			if tc.wantStatus != http.StatusOK {
				return
			}
			var result struct {
				History []idmgmt.HistoryEntry `json:"history"`
			}
			parseJSONResponse(t, recorder, &result)
			if len(result.History) != tc.wantLen {
				t.Fatalf("expected %d entries, got %d", tc.wantLen, len(result.History))
			}
			if last := result.History[len(result.History)-1]; last.NewValue != 0.3 {
				t.Errorf("expected newest entry last, got %+v", last)
			}
		})
	}
}

func TestRestoreThresholds(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		tm := idmgmt.NewThresholdManager(zap.NewNop())
		if err := RestoreThresholds(ctx, tm, mock.NewMockThresholdStore()); err != nil {
			t.Fatalf("RestoreThresholds: %v", err)
		}
		if tm.Settings() != idmgmt.DefaultSettings() {
			t.Error("expected defaults when nothing was saved")
		}
	})

	t.Run("restores settings and history", func(t *testing.T) {
		store := mock.NewMockThresholdStore()
		first, _ := createThresholdsHandlerForTest(store)
		recorder := httptest.NewRecorder()
		first.SetDetection(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds/detection", ThresholdValueRequest{Value: ptrFloat(0.65)}))
		assertStatusCode(t, recorder, http.StatusOK)

		tm := idmgmt.NewThresholdManager(zap.NewNop())
		if err := RestoreThresholds(ctx, tm, store); err != nil {
			t.Fatalf("RestoreThresholds: %v", err)
		}
		if tm.Settings().DetectionThreshold != 0.65 {
			t.Errorf("detection threshold = %v, want 0.65", tm.Settings().DetectionThreshold)
		}
		if len(tm.History()) != 1 {
			t.Fatalf("expected 1 restored entry, got %d", len(tm.History()))
		}

		// restored entries are not written again
		handler := NewThresholdsHandler(tm, store, zap.NewNop())
		recorder = httptest.NewRecorder()
		handler.SetDetection(recorder, jsonRequest(t, "PUT", "/api/v1/thresholds/detection", ThresholdValueRequest{Value: ptrFloat(0.55)}))
		assertStatusCode(t, recorder, http.StatusOK)
		history, _ := store.ListHistory(ctx, 0)
		if len(history) != 2 || history[1].Seq != 2 {
			t.Errorf("persisted history = %+v", history)
		}
	})

	t.Run("load error", func(t *testing.T) {
		store := mock.NewMockThresholdStore()
		store.LoadSettingsError = errors.New("boom")
		if err := RestoreThresholds(ctx, idmgmt.NewThresholdManager(zap.NewNop()), store); err == nil {
			t.Error("expected error")
		}
	})
}
