package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/zlnvch/garden/layout"
	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
)

// GardenSize is the number of newest public items drawn in a garden scene.
const GardenSize = 20

func parseCategory(raw string) (models.Category, error) {
	category, ok := models.ParseCategory(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
	}
	return category, nil
}

func (s *Service) listPage(ctx context.Context, view models.View, category models.Category, page int) (models.Page, error) {
	items, err := s.Store.ListSubmissions(ctx, view, category, page)
	if err != nil {
		return models.Page{}, err
	}
	total, err := s.Store.CountSubmissions(ctx, view, category)
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{
		Items:    items,
		Page:     page,
		PageSize: models.PageSize,
		Total:    total,
	}, nil
}

// Gallery returns one page of the public view, newest first. Pages are
// cached until the next insert or flag in the category.
func (s *Service) Gallery(ctx context.Context, rawCategory string, page int) (models.Page, error) {
	category, err := parseCategory(rawCategory)
	if err != nil {
		return models.Page{}, err
	}
	if page < 1 {
		page = 1
	}

	data, ok, err := s.Cache.GetGalleryPage(ctx, category, page)
	if err != nil {
		logging.Logger.Warn("gallery cache read failed", zap.String("category", string(category)), zap.Error(err))
	}
	if ok {
		var cached models.Page
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		logging.Logger.Warn("discarding unreadable gallery cache entry", zap.String("category", string(category)), zap.Int("page", page))
	}

	// An invalidation between the store read and the cache write bumps the
	// generation, and the stale page is dropped.
	generation, genErr := s.Cache.GalleryGeneration(ctx, category)
	if genErr != nil {
		logging.Logger.Warn("gallery generation read failed", zap.String("category", string(category)), zap.Error(genErr))
	}

	result, err := s.listPage(ctx, models.ViewPublic, category, page)
	if err != nil {
		return models.Page{}, err
	}

	// Public listings never expose submitter identities
	for i := range result.Items {
		result.Items[i].Submitter = ""
	}

	if genErr != nil {
		return result, nil
	}
	if data, err := json.Marshal(result); err == nil {
		stored, err := s.Cache.SetGalleryPage(ctx, category, page, generation, data)
		if err != nil {
			logging.Logger.Warn("gallery cache write failed", zap.String("category", string(category)), zap.Error(err))
		} else if !stored {
			logging.Logger.Debug("gallery invalidated during fill, page not cached", zap.String("category", string(category)), zap.Int("page", page))
		}
	}

	return result, nil
}

// Garden pairs the newest public items with freshly computed positions.
func (s *Service) Garden(ctx context.Context, rawCategory string) ([]models.GardenItem, error) {
	page, err := s.Gallery(ctx, rawCategory, 1)
	if err != nil {
		return nil, err
	}

	items := page.Items
	if len(items) > GardenSize {
		items = items[:GardenSize]
	}

	positions := layout.Layout(len(items))
	garden := make([]models.GardenItem, len(items))
	for i, item := range items {
		garden[i] = models.GardenItem{Submission: item, Position: positions[i]}
	}
	return garden, nil
}
