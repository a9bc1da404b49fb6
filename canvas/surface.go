package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/vector"
)

// DisplaySize is the logical edge length of the drawing area.
const DisplaySize = 224

const BrushWidth = 10

var ErrCaptureUnavailable = errors.New("capture surface not initialized")

// Palette holds the brush colours offered to the visitor.
var Palette = []string{"#EB3963", "#FFAFA6", "#F7FF0B", "#A1DBFF", "#206A00"}

type Point struct {
	X float64
	Y float64
}

// Surface is a raster buffer of DisplaySize x DisplaySize logical units,
// backed by pixelRatio times as many device pixels per axis.
type Surface struct {
	mu sync.Mutex

	img    *image.RGBA
	ratio  float64
	origin Point
	color  color.RGBA

	active   bool
	current  Point
	disabled bool

	raster *vector.Rasterizer
}

func NewSurface(pixelRatio float64) *Surface {
	if pixelRatio <= 0 || math.IsNaN(pixelRatio) || math.IsInf(pixelRatio, 0) {
		pixelRatio = 1
	}
	size := int(math.Round(DisplaySize * pixelRatio))
	if size < 1 {
		size = 1
	}

	c, _ := ParseHexColor(Palette[0])

	return &Surface{
		img:    image.NewRGBA(image.Rect(0, 0, size, size)),
		ratio:  pixelRatio,
		color:  c,
		raster: vector.NewRasterizer(size, size),
	}
}

func (s *Surface) PixelRatio() float64 {
	return s.ratio
}

// SetOrigin records the top-left corner of the surface's bounding rectangle
// in client coordinates.
func (s *Surface) SetOrigin(left, top float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = Point{X: left, Y: top}
}

func (s *Surface) SetColor(c color.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color = c
}

// SetEnabled toggles input. A disabled surface ignores Begin and ends any
// active stroke.
func (s *Surface) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = !enabled
	if s.disabled {
		s.active = false
	}
}

func (s *Surface) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.disabled
}

// Begin starts a stroke at a client-coordinate point.
func (s *Surface) Begin(client Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil || s.disabled {
		return
	}
	s.active = true
	s.current = s.local(client)
}

// Extend draws a segment from the current point to client. No-op unless a
// stroke is active.
func (s *Surface) Extend(client Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil || !s.active {
		return
	}
	next := s.local(client)
	s.drawSegment(s.current, next)
	s.current = next
}

func (s *Surface) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

func (s *Surface) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Clear makes the logical drawing area fully transparent. The rectangle is
// the logical DisplaySize square mapped through the pixel ratio, the same
// transform strokes are drawn with.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return
	}
	r := s.deviceRect(image.Rect(0, 0, DisplaySize, DisplaySize))
	draw.Draw(s.img, r, image.Transparent, image.Point{}, draw.Src)
}

// Snapshot returns a copy of the device-resolution buffer.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil
	}
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

func (s *Surface) local(client Point) Point {
	return Point{X: client.X - s.origin.X, Y: client.Y - s.origin.Y}
}

func (s *Surface) deviceRect(logical image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(math.Floor(float64(logical.Min.X)*s.ratio)),
		int(math.Floor(float64(logical.Min.Y)*s.ratio)),
		int(math.Ceil(float64(logical.Max.X)*s.ratio)),
		int(math.Ceil(float64(logical.Max.Y)*s.ratio)),
	)
	return r.Intersect(s.img.Bounds())
}

// drawSegment fills a capsule around a->b: the line plus a half-disc cap at
// each end. Consecutive capsules overlap at shared points, which gives round
// joins.
func (s *Surface) drawSegment(a, b Point) {
	const arcSteps = 12

	ax, ay := a.X*s.ratio, a.Y*s.ratio
	bx, by := b.X*s.ratio, b.Y*s.ratio
	hw := BrushWidth * s.ratio / 2

	dx, dy := bx-ax, by-ay
	length := math.Hypot(dx, dy)
	var theta float64
	if length > 0 {
		theta = math.Atan2(dy, dx)
	}

	bounds := s.img.Bounds()
	s.raster.Reset(bounds.Dx(), bounds.Dy())
	s.raster.DrawOp = draw.Over

	// Normal points at theta+90; each cap sweeps clockwise through half a turn
	start := theta + math.Pi/2
	s.raster.MoveTo(float32(ax+hw*math.Cos(start)), float32(ay+hw*math.Sin(start)))
	for i := 0; i <= arcSteps; i++ {
		angle := start - math.Pi*float64(i)/arcSteps
		s.raster.LineTo(float32(bx+hw*math.Cos(angle)), float32(by+hw*math.Sin(angle)))
	}
	start -= math.Pi
	for i := 0; i <= arcSteps; i++ {
		angle := start - math.Pi*float64(i)/arcSteps
		s.raster.LineTo(float32(ax+hw*math.Cos(angle)), float32(ay+hw*math.Sin(angle)))
	}
	s.raster.ClosePath()

	s.raster.Draw(s.img, bounds, image.NewUniform(s.color), image.Point{})
}

// ParseHexColor parses "#RRGGBB" or "#RGB".
func ParseHexColor(hex string) (color.RGBA, error) {
	h := strings.TrimPrefix(hex, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", hex)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
