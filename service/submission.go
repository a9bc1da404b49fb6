package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/garden/canvas"
	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/mq"
	"github.com/zlnvch/garden/worker"
)

type SubmitParams struct {
	Identity    string
	PlantType   string
	Probability float64
	Image       []byte
}

type SubmissionEvent struct {
	Type string            `json:"type"`
	Data models.Submission `json:"data"`
}

func validateSubmission(params SubmitParams) (models.Category, error) {
	category, ok := models.ParseCategory(params.PlantType)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, params.PlantType)
	}

	p := params.Probability
	if math.IsNaN(p) || p <= 0 || p > 1 {
		return "", fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}

	if len(params.Image) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	if _, err := canvas.DecodeArtifact(params.Image); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	return category, nil
}

// flowerCount returns the authoritative flower count for an identity. The
// cache is a fast path seeded from the store on a miss.
func (s *Service) flowerCount(ctx context.Context, identity string) (int, error) {
	count, err := s.Cache.GetSubmitterCount(ctx, identity)
	if err == nil && count >= 0 {
		return count, nil
	}
	if err != nil {
		logging.Logger.Warn("submitter count cache read failed", zap.String("identity", identity), zap.Error(err))
	}

	count, err = s.Store.CountSubmitterSubmissions(ctx, identity, models.CategoryFlowers)
	if err != nil {
		return 0, err
	}

	if err := s.Cache.SeedSubmitterCount(ctx, identity, count); err != nil {
		logging.Logger.Warn("failed to seed submitter count", zap.String("identity", identity), zap.Error(err))
	}
	return count, nil
}

func newFilename(category models.Category, now time.Time) string {
	return string(category) + "-" + strconv.FormatInt(now.UnixNano(), 10) + ".png"
}

// SubmitDrawing admits one classified artifact. The flower quota is checked
// against the stored count without a lock, so concurrent submissions from
// one identity can all pass the check.
func (s *Service) SubmitDrawing(ctx context.Context, params SubmitParams) (models.Submission, error) {
	// 1. Validation
	category, err := validateSubmission(params)
	if err != nil {
		return models.Submission{}, err
	}

	// 2. Quota (flowers only)
	if category == models.CategoryFlowers {
		count, err := s.flowerCount(ctx, params.Identity)
		if err != nil {
			// Admission proceeds when the count is unavailable
			logging.Logger.Error("error checking submitter count", zap.String("identity", params.Identity), zap.Error(err))
		} else if count >= models.FlowerQuota {
			logging.Logger.Info("flower quota reached", zap.String("identity", params.Identity), zap.Int("count", count))
			return models.Submission{}, &QuotaError{CurrentCount: count}
		}
	}

	// 3. Upload, never overwriting
	filename := newFilename(category, time.Now())
	obj, err := s.Objects.Upload(ctx, filename, params.Image, "image/png")
	if err != nil {
		logging.Logger.Error("error uploading drawing", zap.String("filename", filename), zap.Error(err))
		return models.Submission{}, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	// 4. Metadata record
	sub := models.Submission{
		Category:   category,
		Filename:   filename,
		ImageURL:   obj.URL,
		Confidence: params.Probability,
		Submitter:  params.Identity,
	}
	if s.isAutoFlagged(params.Identity) {
		flagged := true
		sub.ManualModeration = &flagged
	}

	created, err := s.Store.InsertSubmission(ctx, sub)
	if err != nil {
		logging.Logger.Error("error saving metadata", zap.String("filename", filename), zap.Error(err))
		s.reportOrphan(sub)
		return models.Submission{}, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	logging.Logger.Info("drawing admitted",
		zap.String("id", created.Id),
		zap.String("category", string(category)),
		zap.String("identity", params.Identity))

	// Async side-effects - return to caller as soon as the store write is done
	go s.afterInsert(created)

	return created, nil
}

// reportOrphan queues the uploaded object for the moderation view. The
// object itself is left in place.
func (s *Service) reportOrphan(sub models.Submission) {
	body, err := json.Marshal(worker.OrphanMessage{
		Category:  sub.Category,
		Filename:  sub.Filename,
		URL:       sub.ImageURL,
		Submitter: sub.Submitter,
		Reported:  time.Now().UTC(),
	})
	if err != nil {
		logging.Logger.Error("failed to encode orphan report", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.OrphanQueue.Send(ctx, mq.Message{Type: mq.TypeOrphanObject, Body: string(body)}); err != nil {
		logging.Logger.Error("failed to report orphan object", zap.String("filename", sub.Filename), zap.Error(err))
	}
}

func (s *Service) afterInsert(sub models.Submission) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if event, err := json.Marshal(SubmissionEvent{Type: EventSubmissionCreated, Data: sub}); err == nil {
		if err := s.Cache.Publish(ctx, SubmissionsChannel, event); err != nil {
			logging.Logger.Warn("failed to publish submission event", zap.Error(err))
		}
	}

	if err := s.Cache.InvalidateGallery(ctx, sub.Category); err != nil {
		logging.Logger.Warn("failed to invalidate gallery", zap.String("category", string(sub.Category)), zap.Error(err))
	}

	if sub.Category == models.CategoryFlowers {
		if _, err := s.Cache.IncrementSubmitterCount(ctx, sub.Submitter); err != nil {
			logging.Logger.Warn("failed to increment submitter count", zap.String("identity", sub.Submitter), zap.Error(err))
		}
	}

	s.recordStats(worker.StatsUpdate{Category: sub.Category, Accepted: 1})
}

// IsQuotaError reports whether err carries a QuotaError.
func IsQuotaError(err error) (*QuotaError, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
