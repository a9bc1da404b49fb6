package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
)

// ModerationQueue lists the raw category table, flagged records included.
func (s *Service) ModerationQueue(ctx context.Context, rawCategory string, page int) (models.Page, error) {
	category, err := parseCategory(rawCategory)
	if err != nil {
		return models.Page{}, err
	}
	if page < 1 {
		page = 1
	}
	return s.listPage(ctx, models.ViewAll, category, page)
}

// FlagSubmission hides a record from public views. There is no unflag.
func (s *Service) FlagSubmission(ctx context.Context, moderator models.Moderator, rawCategory string, id string) (models.Submission, error) {
	category, err := parseCategory(rawCategory)
	if err != nil {
		return models.Submission{}, err
	}

	sub, err := s.Store.SetManualModeration(ctx, category, id)
	if err != nil {
		return models.Submission{}, err
	}

	logging.Logger.Info("submission flagged",
		zap.String("id", id),
		zap.String("category", string(category)),
		zap.String("moderator", moderator.Key()))

	// Async side-effects - return to caller as soon as the store write is done
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.Cache.InvalidateGallery(ctx, category); err != nil {
			logging.Logger.Warn("failed to invalidate gallery", zap.String("category", string(category)), zap.Error(err))
		}
		if event, err := json.Marshal(SubmissionEvent{Type: EventSubmissionFlagged, Data: sub}); err == nil {
			if err := s.Cache.Publish(ctx, SubmissionsChannel, event); err != nil {
				logging.Logger.Warn("failed to publish flag event", zap.Error(err))
			}
		}
	}()

	return sub, nil
}

// Orphans lists uploaded objects that have no metadata record.
func (s *Service) Orphans(ctx context.Context) ([]models.Orphan, error) {
	return s.Store.ListOrphans(ctx)
}

func (s *Service) Stats(ctx context.Context) ([]models.CategoryStats, error) {
	return s.Store.GetStats(ctx)
}
