package skills

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"talent-source/models"
	"talent-source/utils"
)

// Reindex embeds every catalog skill again using up to MaxConcurrency
// workers.
func (s *Service) Reindex(ctx context.Context) (*models.ReindexStats, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("reindex: embeddings are disabled")
	}
	startTime := time.Now()
	skills, err := s.store.ListSkills(ctx)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}

	utils.Debug("starting skill reindex", zap.Int("skills", len(skills)), zap.Int("workers", s.cfg.MaxConcurrency))
	stats := s.indexSkills(ctx, skills)

	snap := stats.Snapshot()
	utils.Logger().Info("skill reindex finished",
		zap.Int64("indexed", snap.Indexed), zap.Int64("failed", snap.Failed), zap.Duration("took", time.Since(startTime)))
	return stats, ctx.Err()
}

// indexSkills embeds skills with up to MaxConcurrency workers.
func (s *Service) indexSkills(ctx context.Context, skills []models.Skill) *models.ReindexStats {
	skillsChan := make(chan models.Skill)
	stats := &models.ReindexStats{}
	var processingWg sync.WaitGroup
	processingWg.Add(1)
	go func() {
		defer processingWg.Done()
		processAndIndexSkills(ctx, skillsChan, stats, s.cfg.MaxConcurrency, s.embedSkill)
	}()

feed:
	for _, skill := range skills {
		select {
		case skillsChan <- skill:
		case <-ctx.Done():
			break feed
		}
	}
	close(skillsChan)
	processingWg.Wait()
	return stats
}

func processAndIndexSkills(ctx context.Context, skillsChan <-chan models.Skill, stats *models.ReindexStats,
	maxConcurrency int, index func(context.Context, *models.Skill) error) {
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for skill := range skillsChan {
		atomic.AddInt64(&stats.Total, 1)
		wg.Add(1)
		sem <- struct{}{}

		go func(skill models.Skill) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := index(ctx, &skill); err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				utils.Logger().Warn("index skill", zap.String("skill", skill.Slug), zap.Error(err))
				return
			}
			atomic.AddInt64(&stats.Indexed, 1)
		}(skill)
	}
	wg.Wait()
}
