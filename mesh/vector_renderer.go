package mesh

import (
	"image/png"
	"io"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer renders peak reports as vector graphics on the projected unit disk
type VectorRenderer struct {
	Size       float64 // Canvas edge length in millimeters
	Margin     float64 // Millimeters between the disk and the canvas border
	Rotation   float64 // Counterclockwise rotation of the disk in degrees
	Resolution canvas.Resolution
	Colors     map[string]colorful.Color
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer() *VectorRenderer {
	return &VectorRenderer{
		Size:       120,
		Margin:     8,
		Resolution: canvas.DPI(96),
		Colors:     make(map[string]colorful.Color),
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the reports as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer, reports []*PeakReport) error {
	svgRenderer := svg.New(w, r.Size, r.Size, nil)
	r.renderToCanvas(svgRenderer, reports)
	return svgRenderer.Close()
}

// RenderToPNG writes the reports as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer, reports []*PeakReport) error {
	rast := rasterizer.New(r.Size, r.Size, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, reports)
	return png.Encode(w, rast)
}

// diskTransform maps the unit disk onto the canvas. Canvas y grows upward.
func (r *VectorRenderer) diskTransform() AffineMatrix {
	radius := r.Size/2 - r.Margin
	if radius <= 0 {
		radius = r.Size / 2
	}
	c := r.Size / 2
	place := MultiplyMatrices(Translation(c, c), Scale(radius, radius))
	return MultiplyMatrices(place, RotationDeg(r.Rotation))
}

func canvasColor(c colorful.Color) canvas.Paint {
	return canvas.Paint{Color: toRGBA(c)}
}

// renderToCanvas draws the shared picture for SVG and PNG output
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, reports []*PeakReport) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(r.Size, r.Size), bgStyle, canvas.Identity)

	view := r.diskTransform()
	radius := r.Size/2 - r.Margin
	if radius <= 0 {
		radius = r.Size / 2
	}

	axisStyle := canvas.DefaultStyle
	axisStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	axisStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	axisStyle.StrokeWidth = 0.3
	axisStyle.Dashes = []float64{1.5, 1.5}
	for _, seg := range [][2]Point{{{X: -1}, {X: 1}}, {{Y: -1}, {Y: 1}}} {
		a, b := TransformPoint(seg[0], view), TransformPoint(seg[1], view)
		p := &canvas.Path{}
		p.MoveTo(a.X, a.Y)
		p.LineTo(b.X, b.Y)
		renderer.RenderPath(p, axisStyle, canvas.Identity)
	}

	horizonStyle := canvas.DefaultStyle
	horizonStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	horizonStyle.Stroke = canvas.Paint{Color: canvas.Black}
	horizonStyle.StrokeWidth = 0.4
	horizon := canvas.Circle(radius).Translate(r.Size/2, r.Size/2)
	renderer.RenderPath(horizon, horizonStyle, canvas.Identity)

	sorted := make([]*PeakReport, 0, len(reports))
	for _, rep := range reports {
		if rep != nil {
			sorted = append(sorted, rep)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })

	palette := SourcePalette(len(sorted))
	for i, rep := range sorted {
		c, ok := r.Colors[rep.Source]
		if !ok {
			c = palette[i]
		}
		top := rep.MaxValue()

		for _, pk := range ProjectReport(rep) {
			p := TransformPoint(pk.Point, view)

			rel := 1.0
			if top > 0 {
				rel = pk.Value / top
			}
			dot := radius * (0.02 + 0.04*rel)

			style := canvas.DefaultStyle
			style.Stroke = canvasColor(c)
			style.StrokeWidth = 0.4
			if pk.Flipped {
				style.Fill = canvasColor(c.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.6))
			} else {
				style.Fill = canvasColor(c)
			}
			renderer.RenderPath(canvas.Circle(dot).Translate(p.X, p.Y), style, canvas.Identity)
		}
	}
}
