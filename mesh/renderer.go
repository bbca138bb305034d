package mesh

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultRenderSize is the default raster image edge length in pixels
	DefaultRenderSize = 512

	minPeakRadius = 4
	maxPeakRadius = 14

	// labelSpacing is the minimum pixel distance between two label anchors
	labelSpacing = 14.0
)

var (
	backgroundColor = color.RGBA{255, 255, 255, 255}
	horizonColor    = color.RGBA{60, 60, 60, 255}
	axisColor       = color.RGBA{210, 210, 210, 255}
	textColor       = color.RGBA{0, 0, 0, 255}
)

// SourcePalette returns n distinct colors with evenly spaced hues
func SourcePalette(n int) []colorful.Color {
	palette := make([]colorful.Color, n)
	for i := range n {
		palette[i] = colorful.Hsv(float64(i)*360/float64(max(n, 1)), 0.75, 0.85)
	}
	return palette
}

// ParseColor parses a hex color like "#FF6B6B". Invalid input yields red.
func ParseColor(hex string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{R: 1}
	}
	return c
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{r, g, b, 255}
}

// PeakRenderer draws peak reports as a raster image on the projected unit disk
type PeakRenderer struct {
	Size       int     // Image edge length in pixels
	Margin     int     // Pixels between the disk and the image border
	Rotation   float64 // Counterclockwise rotation of the disk in degrees
	ShowLabels bool
	Colors     map[string]colorful.Color
}

// NewPeakRenderer creates a renderer with default settings.
// size <= 0 selects DefaultRenderSize.
func NewPeakRenderer(size int) *PeakRenderer {
	if size <= 0 {
		size = DefaultRenderSize
	}
	return &PeakRenderer{
		Size:       size,
		Margin:     size / 16,
		ShowLabels: true,
		Colors:     make(map[string]colorful.Color),
	}
}

// SetColor assigns a hex color to a source
func (r *PeakRenderer) SetColor(sourceID, hex string) error {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fmt.Errorf("color for %s: %w", sourceID, err)
	}
	r.Colors[sourceID] = c
	return nil
}

// colorsFor assigns colors to the given sources. Sources without a
// configured color take palette entries in order.
func (r *PeakRenderer) colorsFor(ids []string) map[string]colorful.Color {
	palette := SourcePalette(len(ids))
	out := make(map[string]colorful.Color, len(ids))
	for i, id := range ids {
		if c, ok := r.Colors[id]; ok {
			out[id] = c
		} else {
			out[id] = palette[i]
		}
	}
	return out
}

// Render draws all reports into a new image
func (r *PeakRenderer) Render(reports []*PeakReport) *image.RGBA {
	size := float64(r.Size)
	img := image.NewRGBA(image.Rect(0, 0, r.Size, r.Size))
	fillRect(img, img.Bounds(), backgroundColor)

	view := ViewportTransform(size, float64(r.Margin), r.Rotation)

	// Axes and horizon
	for _, seg := range [][2]Point{{{X: -1}, {X: 1}}, {{Y: -1}, {Y: 1}}} {
		a, b := TransformPoint(seg[0], view), TransformPoint(seg[1], view)
		drawLine(img, a, b, axisColor)
	}
	ring := HorizonRing(horizonSegments)
	for i := 1; i < len(ring); i++ {
		a := TransformPoint(Point{X: ring[i-1][0], Y: ring[i-1][1]}, view)
		b := TransformPoint(Point{X: ring[i][0], Y: ring[i][1]}, view)
		drawLine(img, a, b, horizonColor)
	}

	sorted := make([]*PeakReport, 0, len(reports))
	for _, rep := range reports {
		if rep != nil {
			sorted = append(sorted, rep)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })

	ids := make([]string, len(sorted))
	for i, rep := range sorted {
		ids[i] = rep.Source
	}
	colors := r.colorsFor(ids)

	var anchors []orb.Point
	for _, rep := range sorted {
		c := colors[rep.Source]
		hollow := toRGBA(c.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.6))
		top := rep.MaxValue()

		for rank, pk := range ProjectReport(rep) {
			p := TransformPoint(pk.Point, view)
			cx, cy := int(math.Round(p.X)), int(math.Round(p.Y))

			rel := 1.0
			if top > 0 {
				rel = pk.Value / top
			}
			radius := minPeakRadius + int(math.Round(rel*(maxPeakRadius-minPeakRadius)))

			if pk.Flipped {
				// Lower hemisphere: pale fill with a colored rim
				drawCircle(img, cx, cy, radius, toRGBA(c))
				drawCircle(img, cx, cy, radius-2, hollow)
			} else {
				drawCircle(img, cx, cy, radius, toRGBA(c))
			}

			if !r.ShowLabels {
				continue
			}
			anchor := orb.Point{p.X + float64(radius) + 2, p.Y + 4}
			if tooClose(anchors, anchor) {
				continue
			}
			anchors = append(anchors, anchor)
			drawText(img, int(anchor[0]), int(anchor[1]), fmt.Sprintf("%d:%.2f", rank, pk.Value), textColor)
		}
	}

	drawLegend(img, ids, colors)
	return img
}

func tooClose(anchors []orb.Point, p orb.Point) bool {
	for _, a := range anchors {
		if planar.Distance(a, p) < labelSpacing {
			return true
		}
	}
	return false
}

// EncodePNG renders reports and writes a PNG to w
func (r *PeakRenderer) EncodePNG(w io.Writer, reports []*PeakReport) error {
	return png.Encode(w, r.Render(reports))
}

// SavePNG renders reports to a PNG file
func (r *PeakRenderer) SavePNG(path string, reports []*PeakReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.EncodePNG(f, reports)
}

func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	if radius < 0 {
		return
	}
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if (image.Point{x, y}).In(img.Bounds()) {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
}

// drawLine draws a one pixel line between two points
func drawLine(img *image.RGBA, a, b Point, c color.RGBA) {
	steps := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(a.X + t*(b.X-a.X)))
		y := int(math.Round(a.Y + t*(b.Y-a.Y)))
		if (image.Point{x, y}).In(img.Bounds()) {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawLegend adds source names and color swatches to the top-left corner
func drawLegend(img *image.RGBA, ids []string, colors map[string]colorful.Color) {
	y := 15
	for _, id := range ids {
		fillRect(img, image.Rect(10, y-6, 22, y+6), toRGBA(colors[id]))
		drawText(img, 28, y+4, id, textColor)
		y += 18
	}
}

// drawText renders text onto an image at the specified baseline position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
