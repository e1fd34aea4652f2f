package mask

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kozaktomas/frame-redactor/internal/frame"
)

// square returns a w*h mask with id painted on [x0,x1]x[y0,y1].
func square(w, h, x0, y0, x1, y1 int, id uint8) *frame.Mask {
	m := frame.NewMask(w, h)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			m.Data[y*w+x] = id
		}
	}
	m.ObjectIDs = []int{int(id)}
	return m
}

func TestEllipse(t *testing.T) {
	tests := []struct {
		k    int
		want []span
	}{
		{1, []span{{0, 0, 1}}},
		{3, []span{{-1, 0, 1}, {0, -1, 2}, {1, 0, 1}}},
		{5, []span{{-2, 0, 1}, {-1, -2, 3}, {0, -2, 3}, {1, -2, 3}, {2, 0, 1}}},
	}

	for _, tt := range tests {
		got := ellipse(tt.k)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ellipse(%d) = %v; want %v", tt.k, got, tt.want)
		}
	}
}

func TestDilateErode_SinglePixel(t *testing.T) {
	src := make([]uint8, 25)
	src[12] = 7

	dilated, err := Dilate(src, 5, 5, 3)
	if err != nil {
		t.Fatalf("Dilate() error = %v", err)
	}
	// 3x3 ellipse is a cross
	for _, i := range []int{7, 11, 12, 13, 17} {
		if dilated[i] != 7 {
			t.Errorf("Dilate pixel %d = %d; want 7", i, dilated[i])
		}
	}
	for _, i := range []int{6, 8, 16, 18} {
		if dilated[i] != 0 {
			t.Errorf("Dilate diagonal pixel %d = %d; want 0", i, dilated[i])
		}
	}

	eroded, err := Erode(dilated, 5, 5, 3)
	if err != nil {
		t.Fatalf("Erode() error = %v", err)
	}
	if !reflect.DeepEqual(eroded, src) {
		t.Errorf("Erode(Dilate(x)) = %v; want %v", eroded, src)
	}
}

func TestErode_IgnoresBorder(t *testing.T) {
	src := []uint8{5, 5, 5, 5}
	got, err := Erode(src, 2, 2, 3)
	if err != nil {
		t.Fatalf("Erode() error = %v", err)
	}
	if !reflect.DeepEqual(got, src) {
		t.Errorf("Erode full plane = %v; want %v", got, src)
	}
}

func TestProcessor_InvalidKernel(t *testing.T) {
	p := NewProcessor(nil)
	m := square(4, 4, 1, 1, 2, 2, 1)
	for _, k := range []int{0, -3} {
		if _, err := p.Dilate(m, k); !errors.Is(err, ErrInvalidKernel) {
			t.Errorf("Dilate(k=%d) error = %v; want ErrInvalidKernel", k, err)
		}
	}
}

func TestProcessor_DilateBleedsLargerID(t *testing.T) {
	p := NewProcessor(nil)
	m := frame.MaskFromData(4, 1, []uint8{1, 1, 2, 2})

	got, err := p.Dilate(m, 3)
	if err != nil {
		t.Fatalf("Dilate() error = %v", err)
	}
	want := []uint8{1, 2, 2, 2}
	if !reflect.DeepEqual(got.Data, want) {
		t.Errorf("Dilate() data = %v; want %v", got.Data, want)
	}
	if m.Data[1] != 1 {
		t.Errorf("Dilate mutated its input")
	}
}

func TestProcessor_OpenRemovesSpeck(t *testing.T) {
	p := NewProcessor(nil)
	m := square(9, 9, 2, 2, 6, 6, 3)
	m.Data[0] = 3

	got, err := p.Open(m, 3)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got.Data[0] != 0 {
		t.Errorf("Open() kept isolated speck")
	}
	if got.Data[4*9+4] != 3 {
		t.Errorf("Open() removed region interior")
	}
}

func TestProcessor_CloseFillsHole(t *testing.T) {
	p := NewProcessor(nil)
	m := square(9, 9, 1, 1, 7, 7, 4)
	m.Data[4*9+4] = 0

	got, err := p.Close(m, 3)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got.Data[4*9+4] != 4 {
		t.Errorf("Close() did not fill the hole")
	}
}

func TestProcessor_Merge(t *testing.T) {
	p := NewProcessor(nil)
	a := frame.MaskFromData(4, 1, []uint8{1, 1, 0, 0})
	a.Classes[1] = "person"
	b := frame.MaskFromData(4, 1, []uint8{0, 2, 2, 0})
	b.Classes[2] = "car"

	tests := []struct {
		method MergeMethod
		want   []uint8
	}{
		{MergeUnion, []uint8{1, 2, 2, 0}},
		{MergeIntersection, []uint8{0, 1, 0, 0}},
		{MergeDifference, []uint8{1, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			got, err := p.Merge([]*frame.Mask{a, b}, tt.method)
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			if !reflect.DeepEqual(got.Data, tt.want) {
				t.Errorf("Merge() data = %v; want %v", got.Data, tt.want)
			}
			if !reflect.DeepEqual(got.ObjectIDs, []int{1, 2}) {
				t.Errorf("Merge() ids = %v; want [1 2]", got.ObjectIDs)
			}
			if got.Classes[1] != "person" || got.Classes[2] != "car" {
				t.Errorf("Merge() classes = %v", got.Classes)
			}
		})
	}
}

func TestProcessor_MergeErrors(t *testing.T) {
	p := NewProcessor(nil)
	a := frame.NewMask(2, 2)
	b := frame.NewMask(3, 2)

	if _, err := p.Merge(nil, MergeUnion); err == nil {
		t.Error("Merge(nil) error = nil; want error")
	}
	if _, err := p.Merge([]*frame.Mask{a, b}, MergeUnion); !errors.Is(err, frame.ErrSizeMismatch) {
		t.Errorf("Merge(size mismatch) error = %v; want ErrSizeMismatch", err)
	}
	if _, err := p.Merge([]*frame.Mask{a}, "xor"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("Merge(xor) error = %v; want ErrUnknownMethod", err)
	}
}

func TestProcessor_SplitByID(t *testing.T) {
	p := NewProcessor(nil)
	m := frame.MaskFromData(3, 1, []uint8{1, 2, 1})
	m.Confidences[2] = 0.4

	parts, err := p.SplitByID(m)
	if err != nil {
		t.Fatalf("SplitByID() error = %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("SplitByID() returned %d masks; want 2", len(parts))
	}
	if !reflect.DeepEqual(parts[1].Data, []uint8{1, 0, 1}) {
		t.Errorf("part 1 data = %v", parts[1].Data)
	}
	if !reflect.DeepEqual(parts[2].Data, []uint8{0, 2, 0}) {
		t.Errorf("part 2 data = %v", parts[2].Data)
	}
	if parts[2].Confidences[2] != 0.4 || len(parts[1].Confidences) != 0 {
		t.Errorf("metadata not split: %v / %v", parts[1].Confidences, parts[2].Confidences)
	}
}

func TestProcessor_BoundingBoxes(t *testing.T) {
	p := NewProcessor(nil)
	m := square(20, 20, 2, 3, 9, 7, 5)
	// small disconnected fragment of the same identifier
	m.Data[18*20+18] = 5

	got, err := p.BoundingBoxes(m, 0)
	if err != nil {
		t.Fatalf("BoundingBoxes() error = %v", err)
	}
	want := []BBox{{ID: 5, X: 2, Y: 3, Width: 8, Height: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BoundingBoxes() = %v; want %v", got, want)
	}

	empty, err := p.BoundingBoxes(frame.NewMask(4, 4), 0)
	if err != nil {
		t.Fatalf("BoundingBoxes(empty) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("BoundingBoxes(empty) = %v; want none", empty)
	}
}
