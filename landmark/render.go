package landmark

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ResidualRenderer draws an XY projection of a calibrated landmark pair:
// the target points, the transformed source points, and the residual
// segment connecting each pair. The Z coordinate is dropped for display.
type ResidualRenderer struct {
	From      PointSet
	To        PointSet
	Transform Transform
	RMSError  float64
	Scale     float64 // pixels per world unit
	Padding   float64 // padding in world units
	Radius    int     // marker radius in pixels
}

// NewResidualRenderer creates a renderer with default display settings
func NewResidualRenderer(from, to PointSet, t Transform, rms float64) *ResidualRenderer {
	return &ResidualRenderer{
		From:      from,
		To:        to,
		Transform: t,
		RMSError:  rms,
		Scale:     40.0,
		Padding:   2.0,
		Radius:    4,
	}
}

var (
	targetColor   = color.RGBA{30, 90, 200, 255}
	sourceColor   = color.RGBA{200, 60, 40, 255}
	residualColor = color.RGBA{120, 120, 120, 255}
	labelColor    = color.RGBA{0, 0, 0, 255}
)

// projectXY drops the Z coordinate of each point for planar display.
func projectXY(points PointSet) []orb.Point {
	out := make([]orb.Point, len(points))
	for i, p := range points {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

// transformedFrom applies the transform to every source point.
func (r *ResidualRenderer) transformedFrom() PointSet {
	out := make(PointSet, len(r.From))
	for i, p := range r.From {
		out[i] = r.Transform.Apply(p)
	}
	return out
}

// orbBound computes the world-space extent covering both point sets.
func orbBound(a, b PointSet) orb.Bound {
	all := append(projectXY(a), projectXY(b)...)
	return orb.MultiPoint(all).Bound()
}

// Render produces the residual plot as an image
func (r *ResidualRenderer) Render() (*image.RGBA, error) {
	if len(r.From) == 0 || len(r.From) != len(r.To) {
		return nil, fmt.Errorf("residual renderer needs matched point sets, got %d and %d", len(r.From), len(r.To))
	}
	if r.Transform == nil {
		return nil, fmt.Errorf("residual renderer needs a transform")
	}

	moved := r.transformedFrom()
	bound := orbBound(r.To, moved)

	spanX := bound.Max.X() - bound.Min.X() + 2*r.Padding
	spanY := bound.Max.Y() - bound.Min.Y() + 2*r.Padding
	width := int(math.Ceil(spanX * r.Scale))
	height := int(math.Ceil(spanY * r.Scale))
	if width < 200 {
		width = 200
	}
	if height < 160 {
		height = 160
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	// World to pixel, Y flipped so +Y is up on screen
	toPixel := func(p Point) (int, int) {
		px := (p.X - bound.Min.X() + r.Padding) * r.Scale
		py := (p.Y - bound.Min.Y() + r.Padding) * r.Scale
		return int(px), height - 1 - int(py)
	}

	for i := range r.To {
		tx, ty := toPixel(r.To[i])
		mx, my := toPixel(moved[i])

		drawSegment(img, mx, my, tx, ty, residualColor)
		drawMarker(img, tx, ty, r.Radius, targetColor)
		drawMarker(img, mx, my, r.Radius, sourceColor)
		drawLabel(img, tx+r.Radius+3, ty+4, fmt.Sprintf("%d", i+1), labelColor)
	}

	drawLabel(img, 10, 16, fmt.Sprintf("RMS %.4f", r.RMSError), labelColor)

	return img, nil
}

// RenderPNG encodes the residual plot as a PNG to the writer
func (r *ResidualRenderer) RenderPNG(w io.Writer) error {
	img, err := r.Render()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// RenderPNGFile writes the residual plot to the given path
func (r *ResidualRenderer) RenderPNGFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	return r.RenderPNG(f)
}

// drawMarker draws a filled circle clipped to the image bounds
func drawMarker(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawSegment draws a line between two pixels by stepping along the
// longer axis.
func drawSegment(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	steps := abs(x1 - x0)
	if abs(y1-y0) > steps {
		steps = abs(y1 - y0)
	}
	if steps == 0 {
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
			img.Set(x, y, c)
		}
	}
}

// drawLabel renders text onto the image at the specified position
func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
