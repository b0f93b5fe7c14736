package store

import (
	"context"
	"errors"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"talent-source/models"
)

func (s *Store) CreateSkill(ctx context.Context, skill *models.Skill) error {
	slugGuard, err := guardTx(s.tables.Guards, guardKey("skills", "slug", skill.Slug), skill.ID)
	if err != nil {
		return err
	}
	put, err := putTx(s.tables.Skills, skill, notExists("ID"))
	if err != nil {
		return err
	}
	codes, err := s.transact(ctx, []types.TransactWriteItem{slugGuard, put})
	switch {
	case err == nil:
		return nil
	case conditionFailedAt(codes, 0):
		return models.ErrSlugTaken
	case conditionFailedAt(codes, 1):
		return models.ErrConflict
	}
	return err
}

// SaveSkill replaces an existing skill. The slug is immutable once created.
func (s *Store) SaveSkill(ctx context.Context, skill *models.Skill) error {
	cond := expression.AttributeExists(expression.Name("ID")).
		And(expression.Name("Slug").Equal(expression.Value(skill.Slug)))
	err := s.putItem(ctx, s.tables.Skills, skill, &cond)
	if errors.Is(err, models.ErrConflict) {
		return models.ErrNotFound
	}
	return err
}

func (s *Store) GetSkill(ctx context.Context, id string) (*models.Skill, error) {
	var skill models.Skill
	if err := s.getItem(ctx, s.tables.Skills, idKey(id), &skill); err != nil {
		return nil, err
	}
	return &skill, nil
}

func (s *Store) FindSkillBySlug(ctx context.Context, slug string) (*models.Skill, error) {
	var g guard
	if err := s.getItem(ctx, s.tables.Guards, stringKey("Key", guardKey("skills", "slug", slug)), &g); err != nil {
		return nil, err
	}
	return s.GetSkill(ctx, g.OwnerID)
}

func (s *Store) ListSkills(ctx context.Context) ([]models.Skill, error) {
	var skills []models.Skill
	if err := s.scanAll(ctx, s.tables.Skills, nil, &skills); err != nil {
		return nil, err
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].NameEn < skills[j].NameEn })
	return skills, nil
}

// UpsertPlan keeps the existing id when a plan with the same slug exists.
func (s *Store) UpsertPlan(ctx context.Context, plan *models.Plan) error {
	var g guard
	err := s.getItem(ctx, s.tables.Guards, stringKey("Key", guardKey("plans", "slug", plan.Slug)), &g)
	switch {
	case err == nil:
		plan.ID = g.OwnerID
		return s.putItem(ctx, s.tables.Plans, plan, nil)
	case !errors.Is(err, models.ErrNotFound):
		return err
	}

	slugGuard, err := guardTx(s.tables.Guards, guardKey("plans", "slug", plan.Slug), plan.ID)
	if err != nil {
		return err
	}
	put, err := putTx(s.tables.Plans, plan, nil)
	if err != nil {
		return err
	}
	codes, err := s.transact(ctx, []types.TransactWriteItem{slugGuard, put})
	if conditionFailedAt(codes, 0) {
		return models.ErrSlugTaken
	}
	return err
}

func (s *Store) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := s.getItem(ctx, s.tables.Plans, idKey(id), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := s.scanAll(ctx, s.tables.Plans, nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}
