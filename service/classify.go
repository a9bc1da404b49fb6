package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zlnvch/garden/classifier"
	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/worker"
)

// Classification is a scoring result together with the identity it was
// requested under. The identity is derived once at the edge and passed
// through unchanged.
type Classification struct {
	Result   classifier.Result
	Identity string
}

// ClassifyDrawing scores an artifact. Failures are terminal for the
// submission and never retried.
func (s *Service) ClassifyDrawing(ctx context.Context, identity string, imageDataURI string) (Classification, error) {
	if !s.allow(identity) {
		logging.Logger.Warn("classify rate limited", zap.String("identity", identity))
		return Classification{}, ErrRateLimited
	}

	if !strings.HasPrefix(imageDataURI, "data:image/") {
		return Classification{}, fmt.Errorf("%w: expected an image data URI", ErrInvalidImage)
	}

	probs, err := s.Scorer.Score(ctx, classifier.NewRequest(imageDataURI))
	if err != nil {
		logging.Logger.Error("classifier request failed", zap.String("identity", identity), zap.Error(err))
		return Classification{}, fmt.Errorf("%w: %w", ErrClassificationFailed, err)
	}

	result, err := classifier.NewResult(probs)
	if err != nil {
		logging.Logger.Error("classifier returned unusable result", zap.Int("count", len(probs)), zap.Error(err))
		return Classification{}, fmt.Errorf("%w: %w", ErrClassificationFailed, err)
	}

	verdict := result.Verdict()
	logging.Logger.Info("drawing classified",
		zap.String("identity", identity),
		zap.Stringer("verdict", verdict),
		zap.Float64("flowerProbability", result.FlowerProbability()),
		zap.Float64("eggplantProbability", result.EggplantProbability()))

	if verdict == classifier.VerdictRejected {
		// Rejections have no category of their own
		s.recordStats(worker.StatsUpdate{Category: models.CategoryFlowers, Rejected: 1})
	}

	return Classification{Result: result, Identity: identity}, nil
}
