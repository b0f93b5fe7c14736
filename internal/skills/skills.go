// Package skills maintains the skill catalog and its vector search index.
package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

var (
	ErrInvalidSkill     = errors.New("invalid skill")
	ErrEmptyQuery       = errors.New("empty search query")
	ErrSuggestionsUnset = errors.New("skill suggestions are not configured")
)

type Store interface {
	CreateSkill(ctx context.Context, skill *models.Skill) error
	SaveSkill(ctx context.Context, skill *models.Skill) error
	GetSkill(ctx context.Context, id string) (*models.Skill, error)
	FindSkillBySlug(ctx context.Context, slug string) (*models.Skill, error)
	ListSkills(ctx context.Context) ([]models.Skill, error)
	RestampBillingClass(ctx context.Context, skillID string, class models.BillingClass) (int, error)
}

// Embedder turns text into vectors. services.OpenAIClient satisfies it.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type Config struct {
	MaxDistance    float64
	EmbeddingTTL   time.Duration
	MaxConcurrency int
}

type Service struct {
	store     Store
	index     services.SkillIndex
	embedder  Embedder
	suggester services.SuggesterClient
	cache     services.Cache
	notifier  revalidate.Notifier
	cfg       Config
	now       func() time.Time
}

// NewService wires the catalog. A nil embedder disables vector search and
// a nil suggester disables Suggest.
func NewService(store Store, index services.SkillIndex, embedder Embedder, suggester services.SuggesterClient,
	cache services.Cache, notifier revalidate.Notifier, cfg Config) *Service {
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = 0.65
	}
	if cfg.EmbeddingTTL <= 0 {
		cfg.EmbeddingTTL = 24 * time.Hour
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &Service{
		store:     store,
		index:     index,
		embedder:  embedder,
		suggester: suggester,
		cache:     cache,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Input is the editable part of a skill. Slug defaults to the slugified
// English name and cannot change after creation.
type Input struct {
	Slug         string `json:"slug"`
	NameEn       string `json:"nameEn"`
	NameAr       string `json:"nameAr"`
	BillingClass string `json:"billingClass"`
}

func (in Input) validate() (models.BillingClass, error) {
	if strings.TrimSpace(in.NameEn) == "" {
		return "", fmt.Errorf("%w: nameEn is required", ErrInvalidSkill)
	}
	if strings.TrimSpace(in.NameAr) == "" {
		return "", fmt.Errorf("%w: nameAr is required", ErrInvalidSkill)
	}
	class, err := models.ParseBillingClass(in.BillingClass)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSkill, err)
	}
	return class, nil
}

func (s *Service) Create(ctx context.Context, in Input) (*models.Skill, error) {
	class, err := in.validate()
	if err != nil {
		return nil, err
	}
	slug := services.Slugify(in.Slug)
	if slug == "" {
		slug = services.Slugify(in.NameEn)
	}
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is empty", ErrInvalidSkill)
	}

	now := s.now()
	skill := &models.Skill{
		ID:           uuid.NewString(),
		Slug:         slug,
		NameEn:       strings.TrimSpace(in.NameEn),
		NameAr:       strings.TrimSpace(in.NameAr),
		BillingClass: class,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateSkill(ctx, skill); err != nil {
		return nil, err
	}
	s.indexOne(ctx, skill)
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Skills, ID: skill.ID})
	return skill, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (*models.Skill, error) {
	class, err := in.validate()
	if err != nil {
		return nil, err
	}
	skill, err := s.store.GetSkill(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Slug != "" && services.Slugify(in.Slug) != skill.Slug {
		return nil, fmt.Errorf("%w: slug cannot change", ErrInvalidSkill)
	}

	classChanged := skill.BillingClass != class
	skill.NameEn = strings.TrimSpace(in.NameEn)
	skill.NameAr = strings.TrimSpace(in.NameAr)
	skill.BillingClass = class
	skill.UpdatedAt = s.now()
	if err := s.store.SaveSkill(ctx, skill); err != nil {
		return nil, err
	}
	if classChanged {
		n, err := s.store.RestampBillingClass(ctx, skill.ID, class)
		if err != nil {
			return nil, fmt.Errorf("restamp billing class: %w", err)
		}
		utils.Logger().Info("skill billing class changed",
			zap.String("skill", skill.Slug), zap.String("class", string(class)), zap.Int("candidates", n))
	}
	s.indexOne(ctx, skill)
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Skills, ID: skill.ID})
	return skill, nil
}

// Upsert creates or updates the skill with seed's slug. It reports whether
// the skill was created.
func (s *Service) Upsert(ctx context.Context, seed models.SkillSeed) (*models.Skill, bool, error) {
	in := Input{Slug: seed.Slug, NameEn: seed.NameEn, NameAr: seed.NameAr, BillingClass: seed.Class}
	slug := services.Slugify(seed.Slug)
	if slug == "" {
		slug = services.Slugify(seed.NameEn)
	}
	existing, err := s.store.FindSkillBySlug(ctx, slug)
	switch {
	case err == nil:
		in.Slug = existing.Slug
		skill, err := s.Update(ctx, existing.ID, in)
		return skill, false, err
	case errors.Is(err, models.ErrNotFound):
		in.Slug = slug
		skill, err := s.Create(ctx, in)
		return skill, true, err
	}
	return nil, false, err
}

func (s *Service) Get(ctx context.Context, id string) (*models.Skill, error) {
	return s.store.GetSkill(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.Skill, error) {
	return s.store.ListSkills(ctx)
}

// Suggest drafts the catalog fields for a skill name.
func (s *Service) Suggest(ctx context.Context, name string) (*models.SkillSuggestion, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSkill)
	}
	if s.suggester == nil {
		return nil, ErrSuggestionsUnset
	}
	return s.suggester.Suggest(ctx, name)
}

func indexContent(skill *models.Skill) string {
	return skill.NameEn + " / " + skill.NameAr
}

// indexOne refreshes one skill's vector. Failures leave the previous vector
// in place until the next reindex.
func (s *Service) indexOne(ctx context.Context, skill *models.Skill) {
	if s.embedder == nil {
		return
	}
	if err := s.embedSkill(ctx, skill); err != nil {
		utils.Logger().Warn("index skill", zap.String("skill", skill.Slug), zap.Error(err))
	}
}

func (s *Service) embedSkill(ctx context.Context, skill *models.Skill) error {
	content := indexContent(skill)
	vectors, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		return err
	}
	if len(vectors) != 1 {
		return fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return s.index.Upsert(ctx, skill.ID, content, vectors[0])
}
