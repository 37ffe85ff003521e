package landmark

import (
	"fmt"
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorResidualRenderer renders the residual plot as vector graphics,
// suitable for SVG output or high resolution rasterization. Coordinates
// are in world units scaled to millimeters on the page.
type VectorResidualRenderer struct {
	From       PointSet
	To         PointSet
	Transform  Transform
	Scale      float64           // page millimeters per world unit
	Padding    float64           // padding in world units
	Radius     float64           // marker radius in page millimeters
	Resolution canvas.Resolution // resolution for PNG output
}

// NewVectorResidualRenderer creates a vector renderer with default settings
func NewVectorResidualRenderer(from, to PointSet, t Transform) *VectorResidualRenderer {
	return &VectorResidualRenderer{
		From:       from,
		To:         to,
		Transform:  t,
		Scale:      10.0,
		Padding:    2.0,
		Radius:     1.2,
		Resolution: canvas.DPI(300),
	}
}

// pathRenderer is the subset both the svg and rasterizer backends implement
type pathRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the residual plot as an SVG to the provided writer
func (r *VectorResidualRenderer) RenderToSVG(w io.Writer) error {
	width, height, err := r.pageSize()
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the residual plot as a PNG to the provided writer
func (r *VectorResidualRenderer) RenderToPNG(w io.Writer) error {
	width, height, err := r.pageSize()
	if err != nil {
		return err
	}

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

func (r *VectorResidualRenderer) pageSize() (float64, float64, error) {
	if len(r.From) == 0 || len(r.From) != len(r.To) {
		return 0, 0, fmt.Errorf("residual renderer needs matched point sets, got %d and %d", len(r.From), len(r.To))
	}
	if r.Transform == nil {
		return 0, 0, fmt.Errorf("residual renderer needs a transform")
	}

	moved := r.moved()
	bound := orbBound(r.To, moved)
	width := (bound.Max.X() - bound.Min.X() + 2*r.Padding) * r.Scale
	height := (bound.Max.Y() - bound.Min.Y() + 2*r.Padding) * r.Scale
	if width < 40 {
		width = 40
	}
	if height < 40 {
		height = 40
	}
	return width, height, nil
}

func (r *VectorResidualRenderer) moved() PointSet {
	out := make(PointSet, len(r.From))
	for i, p := range r.From {
		out[i] = r.Transform.Apply(p)
	}
	return out
}

func (r *VectorResidualRenderer) renderToCanvas(renderer pathRenderer, width, height float64) {
	moved := r.moved()
	bound := orbBound(r.To, moved)

	toCanvas := func(p Point) (float64, float64) {
		x := (p.X - bound.Min.X() + r.Padding) * r.Scale
		y := (p.Y - bound.Min.Y() + r.Padding) * r.Scale
		return x, y
	}

	// White background
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// Residual segments first so markers draw over them
	segStyle := canvas.DefaultStyle
	segStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	segStyle.Stroke = canvas.Paint{Color: color.RGBA{120, 120, 120, 255}}
	segStyle.StrokeWidth = 0.3

	for i := range r.To {
		mx, my := toCanvas(moved[i])
		tx, ty := toCanvas(r.To[i])

		seg := &canvas.Path{}
		seg.MoveTo(mx, my)
		seg.LineTo(tx, ty)
		renderer.RenderPath(seg, segStyle, canvas.Identity)
	}

	targetStyle := canvas.DefaultStyle
	targetStyle.Fill = canvas.Paint{Color: color.RGBA{30, 90, 200, 255}}
	targetStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	movedStyle := canvas.DefaultStyle
	movedStyle.Fill = canvas.Paint{Color: color.RGBA{200, 60, 40, 255}}
	movedStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	for i := range r.To {
		tx, ty := toCanvas(r.To[i])
		marker := canvas.Circle(r.Radius).Translate(tx, ty)
		renderer.RenderPath(marker, targetStyle, canvas.Identity)

		mx, my := toCanvas(moved[i])
		marker = canvas.Circle(r.Radius).Translate(mx, my)
		renderer.RenderPath(marker, movedStyle, canvas.Identity)
	}
}
