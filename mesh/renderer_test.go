package mesh

import (
	"bytes"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func poleReport(source string, dir [3]float64) *PeakReport {
	return &PeakReport{
		Source:     source,
		Directions: [][3]float64{dir},
		Values:     []float64{1},
		Indices:    []int{0},
	}
}

func TestNewPeakRenderer(t *testing.T) {
	r := NewPeakRenderer(0)
	if r.Size != DefaultRenderSize {
		t.Errorf("Size = %d, want %d", r.Size, DefaultRenderSize)
	}
	if !r.ShowLabels {
		t.Error("labels should be shown by default")
	}
}

func TestPeakRenderer_SetColor(t *testing.T) {
	r := NewPeakRenderer(64)
	if err := r.SetColor("a", "#00FF00"); err != nil {
		t.Fatalf("SetColor() error: %v", err)
	}
	if err := r.SetColor("b", "green"); err == nil {
		t.Error("SetColor() should reject non-hex colors")
	}
}

func TestPeakRenderer_Render(t *testing.T) {
	r := NewPeakRenderer(128)
	r.ShowLabels = false
	if err := r.SetColor("a", "#00FF00"); err != nil {
		t.Fatal(err)
	}

	img := r.Render([]*PeakReport{poleReport("a", [3]float64{0, 0, 1})})

	if img.Bounds().Dx() != 128 || img.Bounds().Dy() != 128 {
		t.Fatalf("image size = %v, want 128x128", img.Bounds())
	}
	if got := img.RGBAAt(64, 64); got != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("center pixel = %v, want the source color", got)
	}
	if got := img.RGBAAt(127, 127); got != backgroundColor {
		t.Errorf("corner pixel = %v, want background", got)
	}
}

func TestPeakRenderer_FlippedPeakIsHollow(t *testing.T) {
	r := NewPeakRenderer(128)
	r.ShowLabels = false
	if err := r.SetColor("a", "#0000FF"); err != nil {
		t.Fatal(err)
	}

	img := r.Render([]*PeakReport{poleReport("a", [3]float64{0, 0, -1})})

	center := img.RGBAAt(64, 64)
	if center == (color.RGBA{0, 0, 255, 255}) || center == backgroundColor {
		t.Errorf("flipped peak center = %v, want a pale fill", center)
	}
}

func TestPeakRenderer_EmptyReports(t *testing.T) {
	r := NewPeakRenderer(64)
	img := r.Render(nil)
	if got := img.RGBAAt(1, 63); got != backgroundColor {
		t.Errorf("empty render corner = %v, want background", got)
	}
}

func TestPeakRenderer_EncodePNG(t *testing.T) {
	r := NewPeakRenderer(96)
	var buf bytes.Buffer
	reports := []*PeakReport{twoPeakReport(), poleReport("b", [3]float64{0, 1, 1})}
	if err := r.EncodePNG(&buf, reports); err != nil {
		t.Fatalf("EncodePNG() error: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() error: %v", err)
	}
	if img.Bounds().Dx() != 96 {
		t.Errorf("decoded width = %d, want 96", img.Bounds().Dx())
	}
}

func TestPeakRenderer_SavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peaks.png")
	if err := NewPeakRenderer(64).SavePNG(path, []*PeakReport{twoPeakReport()}); err != nil {
		t.Fatalf("SavePNG() error: %v", err)
	}
}

func TestSourcePalette(t *testing.T) {
	p := SourcePalette(4)
	if len(p) != 4 {
		t.Fatalf("len = %d, want 4", len(p))
	}
	for i := 1; i < len(p); i++ {
		if p[i].Hex() == p[0].Hex() {
			t.Errorf("palette entry %d repeats the first color", i)
		}
	}
	if len(SourcePalette(0)) != 0 {
		t.Error("SourcePalette(0) should be empty")
	}
}

func TestParseColor(t *testing.T) {
	if got := ParseColor("#FF6B6B").Hex(); got != "#ff6b6b" {
		t.Errorf("ParseColor() = %s, want #ff6b6b", got)
	}
	if got := ParseColor("nope").Hex(); got != "#ff0000" {
		t.Errorf("invalid color = %s, want #ff0000", got)
	}
}

func TestTooClose(t *testing.T) {
	anchors := []orb.Point{{10, 10}, {100, 100}}
	if !tooClose(anchors, orb.Point{12, 12}) {
		t.Error("anchor within spacing should be too close")
	}
	if tooClose(anchors, orb.Point{50, 50}) {
		t.Error("distant anchor should be accepted")
	}
	if tooClose(nil, orb.Point{}) {
		t.Error("no anchors means nothing is too close")
	}
}
