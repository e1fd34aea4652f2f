package effect

import (
	"image"
	"reflect"
	"testing"

	"github.com/kozaktomas/frame-redactor/internal/frame"
)

// gradientFrame returns a frame whose pixels all differ from their neighbors.
func gradientFrame(w, h int) *frame.Frame {
	f := frame.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := f.Offset(x, y)
			f.Pix[o] = uint8(x * 255 / max(1, w-1))
			f.Pix[o+1] = uint8(y * 255 / max(1, h-1))
			f.Pix[o+2] = uint8((x*7 + y*13) % 256)
		}
	}
	return f
}

// boxMask returns a mask with id on [x0,x1]x[y0,y1].
func boxMask(w, h, x0, y0, x1, y1 int, id uint8) *frame.Mask {
	m := frame.NewMask(w, h)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			m.Data[y*w+x] = id
		}
	}
	m.ObjectIDs = []int{int(id)}
	return m
}

func outsideUnchanged(t *testing.T, in, out *frame.Frame, box image.Rectangle) {
	t.Helper()
	for y := 0; y < in.Height; y++ {
		for x := 0; x < in.Width; x++ {
			if image.Pt(x, y).In(box) {
				continue
			}
			o := in.Offset(x, y)
			if in.Pix[o] != out.Pix[o] || in.Pix[o+1] != out.Pix[o+1] || in.Pix[o+2] != out.Pix[o+2] {
				t.Fatalf("pixel (%d,%d) changed outside the mask box", x, y)
			}
		}
	}
}

func TestEngine_EmptyChainIsIdentity(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(16, 16)
	m := boxMask(16, 16, 2, 2, 10, 10, 1)

	disabled := MosaicDefinition().DefaultConfig("m1")
	disabled.Enabled = false

	for name, configs := range map[string][]Config{"nil": nil, "disabled": {disabled}} {
		out, results := e.ApplyEffects(f, []*frame.Mask{m}, configs, false)
		if !out.Equal(f) {
			t.Errorf("%s: frame changed", name)
		}
		if len(results) != 0 {
			t.Errorf("%s: results = %v; want empty", name, results)
		}
	}
}

func TestEngine_MosaicScenario(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(100, 100)
	m := boxMask(100, 100, 25, 25, 74, 74, 255)
	cfg := Config{Kind: KindMosaic, ID: "mosaic-1", Enabled: true, Intensity: 1, Params: map[string]any{"block_size": 8}}

	out, results := e.ApplyEffects(f, []*frame.Mask{m}, []Config{cfg}, false)

	res, ok := results["mosaic-1"]
	if !ok || !res.Success {
		t.Fatalf("mosaic result = %+v", res)
	}
	if got := res.Statistics["pixels_processed"]; got != 2500 {
		t.Errorf("pixels_processed = %v; want 2500", got)
	}
	outsideUnchanged(t, f, out, image.Rect(25, 25, 75, 75))
	if out.Equal(f) {
		t.Error("mosaic did not change the masked region")
	}
	// first 8x8 cell is flat
	c := out.Offset(25, 25)
	for y := 25; y < 33; y++ {
		for x := 25; x < 33; x++ {
			o := out.Offset(x, y)
			if out.Pix[o] != out.Pix[c] || out.Pix[o+1] != out.Pix[c+1] || out.Pix[o+2] != out.Pix[c+2] {
				t.Fatalf("cell pixel (%d,%d) differs from cell origin", x, y)
			}
		}
	}

	total := results[TotalResultKey]
	if !total.Success || total.Statistics["effects_applied"] != 1 || total.Statistics["preview_mode"] != false {
		t.Errorf("_total = %+v", total)
	}
}

func TestEngine_AllKindsStayInsideBox(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(60, 40)
	m := boxMask(60, 40, 10, 8, 40, 30, 255)
	box := image.Rect(10, 8, 41, 31)

	configs := []Config{
		{Kind: KindMosaic, ID: "circle", Enabled: true, Intensity: 1, Params: map[string]any{"block_size": 6, "shape": "circle"}},
		{Kind: KindBlur, ID: "low", Enabled: true, Intensity: 1, Params: map[string]any{"radius": 2.0, "quality": "low"}},
		{Kind: KindBlur, ID: "high", Enabled: true, Intensity: 1, Params: map[string]any{"radius": 3.0, "quality": "high"}},
		{Kind: KindPixelate, ID: "cubic", Enabled: true, Intensity: 1, Params: map[string]any{"pixel_size": 4, "interpolation": "cubic"}},
	}
	for _, cfg := range configs {
		t.Run(cfg.ID, func(t *testing.T) {
			out, results := e.ApplyEffects(f, []*frame.Mask{m}, []Config{cfg}, false)
			if !results[cfg.ID].Success {
				t.Fatalf("result = %+v", results[cfg.ID])
			}
			outsideUnchanged(t, f, out, box)
		})
	}
}

func TestEngine_PreviewDoesNotMutateConfigs(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(32, 32)
	m := boxMask(32, 32, 4, 4, 27, 27, 1)
	configs := []Config{
		{Kind: KindMosaic, ID: "m", Enabled: true, Intensity: 1, Params: map[string]any{"block_size": 20}},
		{Kind: KindBlur, ID: "b", Enabled: true, Intensity: 1, Params: map[string]any{"radius": 25.0, "quality": "high"}},
		{Kind: KindPixelate, ID: "p", Enabled: true, Intensity: 1, Params: map[string]any{"pixel_size": 12, "interpolation": "cubic"}},
	}
	snapshot := make([]Config, len(configs))
	for i, c := range configs {
		snapshot[i] = c.Clone()
	}

	_, results := e.ApplyEffects(f, []*frame.Mask{m}, configs, true)

	if !reflect.DeepEqual(configs, snapshot) {
		t.Errorf("ApplyEffects(preview) mutated configs: %v", configs)
	}
	if got := results["m"].Statistics["block_size"]; got != 32 {
		t.Errorf("preview block_size = %v; want 32", got)
	}
	if got := results["b"].Statistics["quality"]; got != "low" {
		t.Errorf("preview quality = %v; want low", got)
	}
	if got := results["b"].Statistics["radius"]; got != 10.0 {
		t.Errorf("preview radius = %v; want 10", got)
	}
	if got := results["p"].Statistics["pixel_size"]; got != 16 {
		t.Errorf("preview pixel_size = %v; want 16", got)
	}
	if got := results["p"].Statistics["interpolation"]; got != "nearest" {
		t.Errorf("preview interpolation = %v; want nearest", got)
	}
	if results[TotalResultKey].Statistics["preview_mode"] != true {
		t.Errorf("_total preview_mode not set")
	}
}

func TestPreviewConfig(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want map[string]any
	}{
		{"mosaic default doubles", Config{Kind: KindMosaic}, map[string]any{"block_size": 32}},
		{"mosaic small", Config{Kind: KindMosaic, Params: map[string]any{"block_size": 6}}, map[string]any{"block_size": 12}},
		{"blur small radius kept", Config{Kind: KindBlur, Params: map[string]any{"radius": 3.5}}, map[string]any{"radius": 3.5, "quality": "low"}},
		{"pixelate", Config{Kind: KindPixelate, Params: map[string]any{"pixel_size": 5, "interpolation": "linear"}}, map[string]any{"pixel_size": 10, "interpolation": "nearest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PreviewConfig(tt.in)
			if !reflect.DeepEqual(got.Params, tt.want) {
				t.Errorf("PreviewConfig() params = %v; want %v", got.Params, tt.want)
			}
		})
	}
}

func TestEngine_FailuresDoNotStopChain(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(20, 20)
	m := boxMask(20, 20, 5, 5, 14, 14, 255)
	m.ID = 7

	configs := []Config{
		{Kind: "sepia", ID: "unknown", Enabled: true, Intensity: 1},
		{Kind: KindMosaic, ID: "invalid", Enabled: true, Intensity: 1, Params: map[string]any{"block_size": 1000}},
		{Kind: KindMosaic, ID: "other-mask", Enabled: true, Intensity: 1, TargetMasks: []int{99}},
		{Kind: KindPixelate, ID: "ok", Enabled: true, Intensity: 1, TargetMasks: []int{7}, Params: map[string]any{"pixel_size": 5}},
	}
	out, results := e.ApplyEffects(f, []*frame.Mask{m}, configs, false)

	if r := results["unknown"]; r.Success || r.Error == "" {
		t.Errorf("unknown kind result = %+v; want failure", r)
	}
	if r := results["invalid"]; r.Success || r.Error == "" {
		t.Errorf("invalid params result = %+v; want failure", r)
	}
	if r := results["other-mask"]; !r.Success || r.Statistics["skipped"] != "no_target_masks" || r.ProcessingTimeMS != 0 {
		t.Errorf("no target result = %+v; want skipped success", r)
	}
	if r := results["ok"]; !r.Success {
		t.Errorf("pixelate result = %+v; want success", r)
	}
	if out.Equal(f) {
		t.Error("last effect was not applied")
	}
	if got := results[TotalResultKey].Statistics["effects_applied"]; got != 2 {
		t.Errorf("effects_applied = %v; want 2", got)
	}
}

func TestEngine_TargetSubset(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(32, 32)
	m := boxMask(32, 32, 4, 4, 27, 27, 1)
	m.ID = 3

	tests := []struct {
		name    string
		targets []int
		applied bool
	}{
		{"unset selects all", nil, true},
		{"explicit empty selects none", []int{}, false},
		{"matching id", []int{3}, true},
		{"other id", []int{9}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Kind: KindMosaic, ID: "m", Enabled: true, Intensity: 1,
				Params: map[string]any{"block_size": 8}, TargetMasks: tt.targets}
			out, results := e.ApplyEffects(f, []*frame.Mask{m}, []Config{cfg}, false)
			r := results["m"]
			if !r.Success {
				t.Fatalf("result = %+v", r)
			}
			if tt.applied {
				if r.Statistics["pixels_processed"] != 576 {
					t.Errorf("pixels_processed = %v, want 576", r.Statistics["pixels_processed"])
				}
				return
			}
			if r.Statistics["skipped"] != "no_target_masks" || !out.Equal(f) {
				t.Errorf("expected skipped effect, got %+v", r)
			}
		})
	}
}

func TestEngine_SequentialComposition(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(40, 40)
	m := boxMask(40, 40, 0, 0, 39, 39, 255)
	a := Config{Kind: KindPixelate, ID: "a", Enabled: true, Intensity: 1, Params: map[string]any{"pixel_size": 8}}
	b := Config{Kind: KindMosaic, ID: "b", Enabled: true, Intensity: 1, Params: map[string]any{"block_size": 12}}

	chained, _ := e.ApplyEffects(f, []*frame.Mask{m}, []Config{a, b}, false)
	first, _ := e.ApplyEffects(f, []*frame.Mask{m}, []Config{a}, false)
	manual, _ := e.ApplyEffects(first, []*frame.Mask{m}, []Config{b}, false)

	if !chained.Equal(manual) {
		t.Error("chain output differs from applying effects one after another")
	}
}

func TestEngine_IntensityZeroKeepsFrame(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(20, 20)
	m := boxMask(20, 20, 3, 3, 15, 15, 255)
	cfg := Config{Kind: KindMosaic, ID: "m", Enabled: true, Intensity: 0}

	out, _ := e.ApplyEffects(f, []*frame.Mask{m}, []Config{cfg}, false)
	if !out.Equal(f) {
		t.Error("intensity 0 changed the frame")
	}
}

func TestEngine_CombinesMasksByMaximum(t *testing.T) {
	a := frame.MaskFromData(3, 1, []uint8{4, 0, 1})
	b := frame.MaskFromData(3, 1, []uint8{2, 3, 0})
	got := combineMasks([]*frame.Mask{a, b})
	if want := []uint8{4, 3, 1}; !reflect.DeepEqual(got.Pix, want) {
		t.Errorf("combineMasks() = %v; want %v", got.Pix, want)
	}
}

func TestEngine_EmptyMaskProcessesNothing(t *testing.T) {
	e := NewEngine()
	f := gradientFrame(10, 10)
	cfg := Config{Kind: KindBlur, ID: "b", Enabled: true, Intensity: 1}

	out, results := e.ApplyEffects(f, []*frame.Mask{frame.NewMask(10, 10)}, []Config{cfg}, false)
	if !out.Equal(f) {
		t.Error("empty mask changed the frame")
	}
	if got := results["b"].Statistics["pixels_processed"]; got != 0 {
		t.Errorf("pixels_processed = %v; want 0", got)
	}
}

func TestEngine_RegisterAndDefinitions(t *testing.T) {
	e := NewEngine(WithEffects(NewBlur()))
	if _, ok := e.Effect(KindMosaic); ok {
		t.Error("custom engine registered built-in mosaic")
	}
	e.Register(NewMosaic())
	defs := e.Definitions()
	if len(defs) != 2 || defs[0].Kind != KindBlur || defs[1].Kind != KindMosaic {
		t.Errorf("Definitions() = %v", defs)
	}
	e.SetGPUEnabled(true)
	if !e.GPUAvailable() {
		t.Error("GPUAvailable() = false after SetGPUEnabled(true)")
	}
}

func TestEstimatePerformance_Monotonic(t *testing.T) {
	e := NewEngine()
	cost := func(kind Kind, params map[string]any) float64 {
		t.Helper()
		ms, err := e.Estimate(1920, 1080, Config{Kind: kind, Params: params})
		if err != nil {
			t.Fatalf("Estimate() error = %v", err)
		}
		return ms
	}

	if cost(KindBlur, map[string]any{"radius": 5.0}) >= cost(KindBlur, map[string]any{"radius": 20.0}) {
		t.Error("blur estimate does not grow with radius")
	}
	if cost(KindPixelate, map[string]any{"pixel_size": 16}) >= cost(KindPixelate, map[string]any{"pixel_size": 4}) {
		t.Error("pixelate estimate does not grow as pixel_size shrinks")
	}
	if cost(KindMosaic, map[string]any{"block_size": 32}) >= cost(KindMosaic, map[string]any{"block_size": 8}) {
		t.Error("mosaic estimate does not grow with the number of cells")
	}
	if _, err := e.Estimate(10, 10, Config{Kind: "sepia"}); err == nil {
		t.Error("Estimate(sepia) error = nil")
	}
}
