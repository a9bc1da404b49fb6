package onnx

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"math"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
	"github.com/zlnvch/garden/classifier"
	"github.com/zlnvch/garden/logging"
	"go.uber.org/zap"
)

var ErrInvalidDataURI = errors.New("invalid image data URI")

// Scorer runs a locally exported CLIP model with the label embeddings baked
// in. The model takes a 1x3xNxN float image and returns one logit per label.
type Scorer struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	imageSize    int
}

func NewScorer(modelPath, libraryPath string, imageSize int) (*Scorer, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	size := int64(imageSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(classifier.Labels))))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logging.Logger.Info("ONNX scorer ready",
		zap.String("model", modelPath),
		zap.Int("image_size", imageSize))

	return &Scorer{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		imageSize:    imageSize,
	}, nil
}

// Score ignores req.Text: the label set is fixed when the model is exported.
func (s *Scorer) Score(ctx context.Context, req classifier.Request) ([]float64, error) {
	img, err := DecodeDataURI(req.Image)
	if err != nil {
		return nil, err
	}

	input := Preprocess(img, s.imageSize)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Tensors are bound to the session, so runs are serialized
	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return Softmax(s.outputTensor.GetData()), nil
}

func (s *Scorer) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// DecodeDataURI decodes a base64 "data:image/png;base64,..." string.
func DecodeDataURI(dataURI string) (image.Image, error) {
	header, payload, ok := strings.Cut(dataURI, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, ErrInvalidDataURI
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Preprocess resizes img to size x size and lays it out as planar RGB in [0,1].
// Transparent pixels are composited onto white, matching how the drawing is
// displayed.
func Preprocess(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, a := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			bg := 65535 - a

			i := y*width + x
			data[i] = float32(r+bg) / 65535.0
			data[plane+i] = float32(g+bg) / 65535.0
			data[2*plane+i] = float32(b+bg) / 65535.0
		}
	}

	return data
}

func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := float64(logits[0])
	for _, l := range logits[1:] {
		maxVal = math.Max(maxVal, float64(l))
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
