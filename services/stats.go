package services

import (
	"context"

	"post-insight-pipeline/internal/logger"
	"post-insight-pipeline/internal/store"
	"post-insight-pipeline/models"
)

// StatsService aggregates pipeline progress across the store and the index.
type StatsService struct {
	store store.PostStore
	index SearchIndex
}

func NewStatsService(posts store.PostStore, index SearchIndex) *StatsService {
	return &StatsService{store: posts, index: index}
}

func (s *StatsService) Overview(ctx context.Context) (*models.PipelineStats, error) {
	states, err := s.store.CountByState(ctx)
	if err != nil {
		return nil, err
	}

	languages, err := s.store.CountByField(ctx, "language.tag")
	if err != nil {
		return nil, err
	}

	sentiments, err := s.store.CountByField(ctx, "sentiment_consensus.label")
	if err != nil {
		return nil, err
	}

	stats := &models.PipelineStats{
		States:     states,
		Languages:  languages,
		Sentiments: sentiments,
	}

	// The index count is best effort; the store is the source of truth.
	if count, err := s.index.Count(ctx); err != nil {
		logger.Warn("failed to count index documents", "error", err.Error())
	} else {
		stats.IndexDocs = count
	}

	return stats, nil
}
