package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"go.uber.org/zap"
)

// testConfig creates a config with defaults and the built-in presets
func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Engine.Workers = 2
	cfg.Engine.JPEGQuality = 90
	cfg.Thresholds = idmgmt.DefaultSettings()
	return cfg
}

func testEngine() *effect.Engine {
	return effect.NewEngine(effect.WithLogger(zap.NewNop()))
}

// jsonRequest creates a request with body encoded as JSON
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// gradientFrame returns a frame whose pixels all differ from their neighbours
func gradientFrame(w, h int) *frame.Frame {
	f := frame.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := f.Offset(x, y)
			f.Pix[o] = uint8(x * 255 / max(1, w-1))
			f.Pix[o+1] = uint8(y * 255 / max(1, h-1))
			f.Pix[o+2] = uint8((x + y) % 256)
		}
	}
	return f
}

// boxMask fills (x0,y0)-(x1,y1) inclusive with id
func boxMask(w, h, x0, y0, x1, y1 int, id uint8) *frame.Mask {
	m := frame.NewMask(w, h)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			m.Data[y*w+x] = id
		}
	}
	m.ObjectIDs = frame.UniqueIDs(m.Data)
	return m
}

// objectsMask is a 10x10 mask with three objects:
// id 1 at (1,1)-(3,3), id 2 at (5,5)-(8,6), id 3 on row 9.
func objectsMask() *frame.Mask {
	m := frame.NewMask(10, 10)
	fill := func(x0, y0, x1, y1 int, id uint8) {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				m.Data[y*10+x] = id
			}
		}
	}
	fill(1, 1, 3, 3, 1)
	fill(5, 5, 8, 6, 2)
	fill(0, 9, 9, 9, 3)
	m.ObjectIDs = []int{1, 2, 3}
	m.Classes = map[int]string{1: "person", 2: "License_Plate", 3: "car"}
	m.Confidences = map[int]float64{1: 0.9, 2: 0.6, 3: 0.75}
	return m
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
