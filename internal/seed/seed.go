// Package seed loads plans and skills from YAML files or a published skills
// table. Seeding runs with revalidation hooks disabled and revalidates each
// collection once at the end.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

const DefaultCurrency = "SAR"

var ErrInvalidPlan = errors.New("invalid plan")

type PlanStore interface {
	UpsertPlan(ctx context.Context, plan *models.Plan) error
}

type SkillUpserter interface {
	Upsert(ctx context.Context, seed models.SkillSeed) (*models.Skill, bool, error)
}

type Seeder struct {
	plans          PlanStore
	skills         SkillUpserter
	notifier       revalidate.Notifier
	maxConcurrency int
}

func NewSeeder(plans PlanStore, skills SkillUpserter, notifier revalidate.Notifier, maxConcurrency int) *Seeder {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Seeder{plans: plans, skills: skills, notifier: notifier, maxConcurrency: maxConcurrency}
}

// Result counts what one seed run did.
type Result struct {
	Total   int64 `json:"total"`
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
	Failed  int64 `json:"failed"`
}

func (r *Result) String() string {
	return fmt.Sprintf("total=%d created=%d updated=%d failed=%d", r.Total, r.Created, r.Updated, r.Failed)
}

type planFile struct {
	Plans []models.Plan `yaml:"plans"`
}

type skillFile struct {
	Skills []models.SkillSeed `yaml:"skills"`
}

func LoadPlans(r io.Reader) ([]models.Plan, error) {
	var f planFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}
	for i := range f.Plans {
		if err := normalizePlan(&f.Plans[i]); err != nil {
			return nil, fmt.Errorf("plan %d: %w", i, err)
		}
	}
	return f.Plans, nil
}

func LoadSkills(r io.Reader) ([]models.SkillSeed, error) {
	var f skillFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	return f.Skills, nil
}

func normalizePlan(p *models.Plan) error {
	p.Slug = services.Slugify(p.Slug)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	switch {
	case p.Slug == "":
		return fmt.Errorf("%w: slug is required", ErrInvalidPlan)
	case p.NameEn == "" || p.NameAr == "":
		return fmt.Errorf("%w: %s needs English and Arabic names", ErrInvalidPlan, p.Slug)
	case p.Credits <= 0:
		return fmt.Errorf("%w: %s credits must be positive", ErrInvalidPlan, p.Slug)
	case p.Price <= 0:
		return fmt.Errorf("%w: %s price must be positive", ErrInvalidPlan, p.Slug)
	case p.DurationDays <= 0:
		return fmt.Errorf("%w: %s duration_days must be positive", ErrInvalidPlan, p.Slug)
	}
	return nil
}

// Plans upserts each plan by slug. It stops at the first store error.
func (s *Seeder) Plans(ctx context.Context, plans []models.Plan) (*Result, error) {
	res := &Result{}
	quiet := revalidate.Disable(ctx)
	for i := range plans {
		p := plans[i]
		if err := normalizePlan(&p); err != nil {
			return res, err
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		res.Total++
		if err := s.plans.UpsertPlan(quiet, &p); err != nil {
			res.Failed++
			return res, fmt.Errorf("upsert plan %s: %w", p.Slug, err)
		}
		res.Updated++
		utils.Debug("plan seeded", zap.String("slug", p.Slug), zap.String("id", p.ID))
	}
	if res.Updated > 0 {
		s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Plans})
	}
	return res, nil
}

// Skills upserts seeds as they arrive until the channel closes. Failed rows
// are logged and counted.
func (s *Seeder) Skills(ctx context.Context, seeds <-chan models.SkillSeed) *Result {
	res := &Result{}
	quiet := revalidate.Disable(ctx)

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for seed := range seeds {
		atomic.AddInt64(&res.Total, 1)
		g.Go(func() error {
			_, created, err := s.skills.Upsert(quiet, seed)
			switch {
			case err != nil:
				atomic.AddInt64(&res.Failed, 1)
				utils.Logger().Warn("skill seed failed", zap.String("nameEn", seed.NameEn), zap.Error(err))
			case created:
				atomic.AddInt64(&res.Created, 1)
			default:
				atomic.AddInt64(&res.Updated, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if res.Created+res.Updated > 0 {
		s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Skills})
	}
	return res
}

// SkillList feeds a loaded list through Skills.
func (s *Seeder) SkillList(ctx context.Context, list []models.SkillSeed) *Result {
	seeds := make(chan models.SkillSeed)
	go func() {
		defer close(seeds)
		for _, seed := range list {
			select {
			case seeds <- seed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s.Skills(ctx, seeds)
}

// SkillsFromURL imports the skills table published at pageURL.
func (s *Seeder) SkillsFromURL(ctx context.Context, scraper services.SkillScraperClient, pageURL, rowSelector string) *Result {
	seeds := make(chan models.SkillSeed)
	go scraper.ScrapeSkills(ctx, pageURL, rowSelector, seeds)
	res := s.Skills(ctx, seeds)
	utils.Logger().Info("skills imported",
		zap.String("url", pageURL), zap.Int("slugs", len(scraper.GetProcessedSlugs())), zap.Stringer("result", res))
	return res
}
