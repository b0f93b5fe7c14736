package skills

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// Search ranks skills by cosine distance to query. Without embeddings, or
// when the index cannot be brought up to date with the catalog, it falls
// back to substring matching on both names.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.SkillMatch, error) {
	q := normalizeQuery(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	limit = clampLimit(limit)

	catalog, err := s.store.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	if s.embedder != nil && len(catalog) > 0 {
		matches, err := s.vectorSearch(ctx, catalog, q, limit)
		if err == nil && matches != nil {
			return matches, nil
		}
		if err != nil {
			utils.Logger().Warn("vector skill search failed, using substring match", zap.Error(err))
		}
	}
	return substringSearch(catalog, q, limit), nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	}
	return limit
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// vectorSearch returns nil matches without error when the index does not
// cover catalog.
func (s *Service) vectorSearch(ctx context.Context, catalog []models.Skill, q string, limit int) ([]models.SkillMatch, error) {
	covered, err := s.syncIndex(ctx, catalog)
	if err != nil {
		return nil, err
	}
	if !covered {
		return nil, nil
	}
	vec, err := s.queryEmbedding(ctx, q)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, vec, limit, s.cfg.MaxDistance)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Skill, len(catalog))
	for _, skill := range catalog {
		byID[skill.ID] = skill
	}
	matches := make([]models.SkillMatch, 0, len(hits))
	for _, hit := range hits {
		skill, ok := byID[hit.SkillID]
		if !ok {
			utils.Debug("stale skill vector", zap.String("skill", hit.SkillID))
			continue
		}
		matches = append(matches, models.SkillMatch{Skill: skill, Similarity: 1 - hit.Distance})
	}
	return matches, nil
}

// syncIndex embeds catalog skills whose vector is missing or was built from
// different names, and drops vectors of skills no longer in the catalog. The
// index is local to the process while the catalog is shared, so other
// instances' edits only reach it this way. It reports whether every catalog
// skill now has a current vector.
func (s *Service) syncIndex(ctx context.Context, catalog []models.Skill) (bool, error) {
	contents, err := s.index.Contents(ctx)
	if err != nil {
		return false, err
	}

	inCatalog := make(map[string]bool, len(catalog))
	var stale []models.Skill
	for _, skill := range catalog {
		inCatalog[skill.ID] = true
		if content, ok := contents[skill.ID]; !ok || content != indexContent(&skill) {
			stale = append(stale, skill)
		}
	}
	for id := range contents {
		if !inCatalog[id] {
			if err := s.index.Delete(ctx, id); err != nil {
				return false, err
			}
		}
	}
	if len(stale) == 0 {
		return true, nil
	}

	stats := s.indexSkills(ctx, stale)
	snap := stats.Snapshot()
	utils.Logger().Info("skill index refreshed",
		zap.Int("catalog", len(catalog)), zap.Int64("indexed", snap.Indexed), zap.Int64("failed", snap.Failed))
	return snap.Failed == 0 && ctx.Err() == nil, nil
}

func embeddingCacheKey(q string) string {
	return "skills:embedding:" + q
}

func (s *Service) queryEmbedding(ctx context.Context, q string) ([]float32, error) {
	key := embeddingCacheKey(q)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var vec []float32
			if err := json.Unmarshal(data, &vec); err == nil {
				return vec, nil
			}
		} else if !errors.Is(err, services.ErrCacheMiss) {
			utils.Logger().Warn("embedding cache read", zap.Error(err))
		}
	}

	vectors, err := s.embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errors.New("embedding response is empty")
	}
	if s.cache != nil {
		if data, err := json.Marshal(vectors[0]); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cfg.EmbeddingTTL); err != nil {
				utils.Logger().Warn("embedding cache write", zap.Error(err))
			}
		}
	}
	return vectors[0], nil
}

// substringSearch scores exact name matches 1, prefixes 0.75 and other
// substrings 0.5.
func substringSearch(skills []models.Skill, q string, limit int) []models.SkillMatch {
	matches := []models.SkillMatch{}
	for _, skill := range skills {
		score := 0.0
		for _, name := range []string{strings.ToLower(skill.NameEn), strings.ToLower(skill.NameAr)} {
			switch {
			case name == q:
				score = max(score, 1)
			case strings.HasPrefix(name, q):
				score = max(score, 0.75)
			case strings.Contains(name, q):
				score = max(score, 0.5)
			}
		}
		if score > 0 {
			matches = append(matches, models.SkillMatch{Skill: skill, Similarity: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
