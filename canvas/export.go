package canvas

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/nfnt/resize"
)

// ExportSize is the edge length of every exported artifact.
const ExportSize = 224

// Artifact is the canonical exported image sent for classification and
// stored.
type Artifact struct {
	img *image.RGBA
}

func (a *Artifact) Image() *image.RGBA {
	return a.img
}

func (a *Artifact) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, a.img); err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Artifact) DataURI() (string, error) {
	data, err := a.PNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Export downsamples the surface into a new ExportSize square. The surface is
// left untouched.
func (s *Surface) Export() (*Artifact, error) {
	src := s.Snapshot()
	if src == nil {
		return nil, ErrCaptureUnavailable
	}

	scaled := resize.Resize(ExportSize, ExportSize, src, resize.Bilinear)

	// resize may hand back its input when no scaling is needed
	out := image.NewRGBA(image.Rect(0, 0, ExportSize, ExportSize))
	draw.Draw(out, out.Bounds(), scaled, scaled.Bounds().Min, draw.Src)

	return &Artifact{img: out}, nil
}

// DecodeArtifact parses a PNG and checks it has the export dimensions.
func DecodeArtifact(data []byte) (*Artifact, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	b := img.Bounds()
	if b.Dx() != ExportSize || b.Dy() != ExportSize {
		return nil, fmt.Errorf("artifact is %dx%d, want %dx%d", b.Dx(), b.Dy(), ExportSize, ExportSize)
	}
	out := image.NewRGBA(image.Rect(0, 0, ExportSize, ExportSize))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return &Artifact{img: out}, nil
}
