package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"talent-source/models"
)

func (s *Store) accountTable(role models.Role) (string, error) {
	switch role {
	case models.RoleCandidate:
		return s.tables.Candidates, nil
	case models.RoleEmployer:
		return s.tables.Employers, nil
	case models.RoleAdmin:
		return s.tables.Admins, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

// createAccount writes v together with its email and (optional) phone guards.
func (s *Store) createAccount(ctx context.Context, role models.Role, id, email, phone string, v any) error {
	table, err := s.accountTable(role)
	if err != nil {
		return err
	}
	emailGuard, err := guardTx(s.tables.Guards, guardKey(string(role), "email", email), id)
	if err != nil {
		return err
	}
	put, err := putTx(table, v, notExists("ID"))
	if err != nil {
		return err
	}
	items := []types.TransactWriteItem{emailGuard, put}
	if phone != "" {
		phoneGuard, err := guardTx(s.tables.Guards, guardKey(string(role), "phone", phone), id)
		if err != nil {
			return err
		}
		items = append(items, phoneGuard)
	}

	codes, err := s.transact(ctx, items)
	switch {
	case err == nil:
		return nil
	case conditionFailedAt(codes, 0):
		return models.ErrEmailTaken
	case conditionFailedAt(codes, 2):
		return models.ErrPhoneTaken
	case conditionFailedAt(codes, 1):
		return models.ErrConflict
	}
	return fmt.Errorf("create %s: %w", role, err)
}

func (s *Store) CreateCandidate(ctx context.Context, c *models.Candidate) error {
	return s.createAccount(ctx, models.RoleCandidate, c.ID, c.Email, c.Phone, c)
}

func (s *Store) CreateEmployer(ctx context.Context, e *models.Employer) error {
	return s.createAccount(ctx, models.RoleEmployer, e.ID, e.Email, e.Phone, e)
}

func (s *Store) CreateAdmin(ctx context.Context, a *models.Admin) error {
	return s.createAccount(ctx, models.RoleAdmin, a.ID, a.Email, "", a)
}

// FindAccountID resolves a unique field (email or phone) to the owning account id.
func (s *Store) FindAccountID(ctx context.Context, role models.Role, field, value string) (string, error) {
	var g guard
	if err := s.getItem(ctx, s.tables.Guards, stringKey("Key", guardKey(string(role), field, value)), &g); err != nil {
		return "", err
	}
	return g.OwnerID, nil
}

func (s *Store) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	var c models.Candidate
	if err := s.getItem(ctx, s.tables.Candidates, idKey(id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetEmployer(ctx context.Context, id string) (*models.Employer, error) {
	var e models.Employer
	if err := s.getItem(ctx, s.tables.Employers, idKey(id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetAdmin(ctx context.Context, id string) (*models.Admin, error) {
	var a models.Admin
	if err := s.getItem(ctx, s.tables.Admins, idKey(id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	var admins []models.Admin
	if err := s.scanAll(ctx, s.tables.Admins, nil, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}

// setOrRemove sets name to value, or removes it when empty so the item
// matches what omitempty marshalling writes.
func setOrRemove(update expression.UpdateBuilder, name string, value any, empty bool) expression.UpdateBuilder {
	if empty {
		return update.Remove(expression.Name(name))
	}
	return update.Set(expression.Name(name), expression.Value(value))
}

// UpdateCandidateProfile writes the self-service profile fields of c and
// returns the stored candidate. Status, phone verification and file keys
// are left to their own writers.
func (s *Store) UpdateCandidateProfile(ctx context.Context, c *models.Candidate) (*models.Candidate, error) {
	update := expression.Set(expression.Name("Name"), expression.Value(c.Name)).
		Set(expression.Name("ExperienceYears"), expression.Value(c.ExperienceYears)).
		Set(expression.Name("UpdatedAt"), expression.Value(s.now()))
	update = setOrRemove(update, "NameAr", c.NameAr, c.NameAr == "")
	update = setOrRemove(update, "Nationality", c.Nationality, c.Nationality == "")
	update = setOrRemove(update, "Gender", c.Gender, c.Gender == "")
	update = setOrRemove(update, "BirthDate", c.BirthDate, c.BirthDate == "")
	update = setOrRemove(update, "City", c.City, c.City == "")
	update = setOrRemove(update, "PrimarySkillID", c.PrimarySkillID, c.PrimarySkillID == "")
	update = setOrRemove(update, "BillingClass", c.BillingClass, c.BillingClass == "")
	update = setOrRemove(update, "SkillIDs", c.SkillIDs, len(c.SkillIDs) == 0)
	update = setOrRemove(update, "Languages", c.Languages, len(c.Languages) == 0)
	update = setOrRemove(update, "Bio", c.Bio, c.Bio == "")
	update = setOrRemove(update, "BioAr", c.BioAr, c.BioAr == "")
	update = setOrRemove(update, "Availability", c.Availability, c.Availability == "")
	update = setOrRemove(update, "ExpectedSalary", c.ExpectedSalary, c.ExpectedSalary == 0)
	update = setOrRemove(update, "PreferredLanguage", c.PreferredLanguage, c.PreferredLanguage == "")

	attrs, err := s.updateItemReturning(ctx, s.tables.Candidates, idKey(c.ID), update, exists("ID"), types.ReturnValueAllNew)
	if errors.Is(err, models.ErrConflict) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var out models.Candidate
	if err := attributevalue.UnmarshalMap(attrs, &out); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	return &out, nil
}

// SetCandidateFile points field (CVKey or PhotoKey) at key. It returns the
// updated candidate and the key it replaced, empty when there was none.
func (s *Store) SetCandidateFile(ctx context.Context, id, field, key string) (*models.Candidate, string, error) {
	if field != "CVKey" && field != "PhotoKey" {
		return nil, "", fmt.Errorf("unknown candidate file field %q", field)
	}
	now := s.now()
	update := expression.Set(expression.Name(field), expression.Value(key)).
		Set(expression.Name("UpdatedAt"), expression.Value(now))
	attrs, err := s.updateItemReturning(ctx, s.tables.Candidates, idKey(id), update, exists("ID"), types.ReturnValueAllOld)
	if errors.Is(err, models.ErrConflict) {
		return nil, "", models.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	var c models.Candidate
	if err := attributevalue.UnmarshalMap(attrs, &c); err != nil {
		return nil, "", fmt.Errorf("decode candidate: %w", err)
	}
	previous := c.CVKey
	if field == "CVKey" {
		c.CVKey = key
	} else {
		previous = c.PhotoKey
		c.PhotoKey = key
	}
	c.UpdatedAt = now
	return &c, previous, nil
}

func (s *Store) UpdateEmployerProfile(ctx context.Context, e *models.Employer) error {
	update := expression.Set(expression.Name("CompanyName"), expression.Value(e.CompanyName)).
		Set(expression.Name("ContactName"), expression.Value(e.ContactName)).
		Set(expression.Name("Industry"), expression.Value(e.Industry)).
		Set(expression.Name("City"), expression.Value(e.City)).
		Set(expression.Name("PreferredLanguage"), expression.Value(e.PreferredLanguage)).
		Set(expression.Name("UpdatedAt"), expression.Value(s.now()))
	err := s.updateItem(ctx, s.tables.Employers, idKey(e.ID), update, exists("ID"))
	if errors.Is(err, models.ErrConflict) {
		return models.ErrNotFound
	}
	return err
}

func (s *Store) SetPhoneVerified(ctx context.Context, role models.Role, id string) error {
	return s.setAccountField(ctx, role, id, "PhoneVerified", true)
}

func (s *Store) SetPasswordHash(ctx context.Context, role models.Role, id, hash string) error {
	return s.setAccountField(ctx, role, id, "PasswordHash", hash)
}

func (s *Store) setAccountField(ctx context.Context, role models.Role, id, field string, value any) error {
	table, err := s.accountTable(role)
	if err != nil {
		return err
	}
	update := expression.Set(expression.Name(field), expression.Value(value))
	if role != models.RoleAdmin {
		update = update.Set(expression.Name("UpdatedAt"), expression.Value(s.now()))
	}
	err = s.updateItem(ctx, table, idKey(id), update, exists("ID"))
	if errors.Is(err, models.ErrConflict) {
		return models.ErrNotFound
	}
	return err
}

func (s *Store) SetCandidateStatus(ctx context.Context, id string, status models.CandidateStatus) error {
	update := expression.Set(expression.Name("Status"), expression.Value(status)).
		Set(expression.Name("UpdatedAt"), expression.Value(s.now()))
	err := s.updateItem(ctx, s.tables.Candidates, idKey(id), update, exists("ID"))
	if errors.Is(err, models.ErrConflict) {
		return models.ErrNotFound
	}
	return err
}

// ListCandidates scans with the exact-match criteria pushed down to DynamoDB.
// Free text matching is left to the caller.
func (s *Store) ListCandidates(ctx context.Context, f models.CandidateFilter) ([]models.Candidate, error) {
	var candidates []models.Candidate
	if err := s.scanAll(ctx, s.tables.Candidates, candidateFilterExpression(f), &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func candidateFilterExpression(f models.CandidateFilter) *expression.ConditionBuilder {
	var conds []expression.ConditionBuilder
	eq := func(attr string, value any) {
		conds = append(conds, expression.Name(attr).Equal(expression.Value(value)))
	}
	if f.Status != "" {
		eq("Status", f.Status)
	}
	if f.SkillID != "" {
		conds = append(conds, expression.Or(
			expression.Name("PrimarySkillID").Equal(expression.Value(f.SkillID)),
			expression.Contains(expression.Name("SkillIDs"), f.SkillID),
		))
	}
	if f.BillingClass != "" {
		eq("BillingClass", f.BillingClass)
	}
	if f.Gender != "" {
		eq("Gender", f.Gender)
	}
	if f.Availability != "" {
		eq("Availability", f.Availability)
	}
	if f.MinExperience > 0 {
		conds = append(conds, expression.Name("ExperienceYears").GreaterThanEqual(expression.Value(f.MinExperience)))
	}
	if f.MaxExperience > 0 {
		conds = append(conds, expression.Name("ExperienceYears").LessThanEqual(expression.Value(f.MaxExperience)))
	}

	switch len(conds) {
	case 0:
		return nil
	case 1:
		return &conds[0]
	}
	cond := expression.And(conds[0], conds[1], conds[2:]...)
	return &cond
}

// RestampBillingClass copies a skill's class onto candidates whose primary skill it is.
func (s *Store) RestampBillingClass(ctx context.Context, skillID string, class models.BillingClass) (int, error) {
	filter := expression.Name("PrimarySkillID").Equal(expression.Value(skillID))
	var candidates []models.Candidate
	if err := s.scanAll(ctx, s.tables.Candidates, &filter, &candidates); err != nil {
		return 0, err
	}
	updated := 0
	for _, c := range candidates {
		if c.BillingClass == class {
			continue
		}
		update := expression.Set(expression.Name("BillingClass"), expression.Value(class))
		if err := s.updateItem(ctx, s.tables.Candidates, idKey(c.ID), update, nil); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *Store) chargeTx(employerID string, credits int, now time.Time) (types.TransactWriteItem, error) {
	update := expression.Set(expression.Name("CreditBalance"), expression.Name("CreditBalance").Minus(expression.Value(credits))).
		Set(expression.Name("UpdatedAt"), expression.Value(now))
	cond := expression.Name("CreditBalance").GreaterThanEqual(expression.Value(credits)).
		And(expression.Name("PlanExpiresUnix").GreaterThan(expression.Value(now.Unix())))
	return updateTx(s.tables.Employers, idKey(employerID), update, &cond)
}

func (s *Store) refundTx(employerID string, credits int, now time.Time) (types.TransactWriteItem, error) {
	update := expression.Add(expression.Name("CreditBalance"), expression.Value(credits)).
		Set(expression.Name("UpdatedAt"), expression.Value(now))
	return updateTx(s.tables.Employers, idKey(employerID), update, exists("ID"))
}

// chargeFailure explains why a charge condition failed.
func (s *Store) chargeFailure(ctx context.Context, employerID string, now time.Time) error {
	employer, err := s.GetEmployer(ctx, employerID)
	if err != nil {
		return err
	}
	if !employer.PlanActive(now) {
		return models.ErrPlanExpired
	}
	return models.ErrInsufficientCredits
}

// ChargeCredits spends credits outside any other write.
func (s *Store) ChargeCredits(ctx context.Context, employerID string, credits int) error {
	now := s.now()
	item, err := s.chargeTx(employerID, credits, now)
	if err != nil {
		return err
	}
	codes, err := s.transact(ctx, []types.TransactWriteItem{item})
	switch {
	case err == nil:
		return nil
	case conditionFailedAt(codes, 0):
		return s.chargeFailure(ctx, employerID, now)
	}
	return err
}

func (s *Store) RefundCredits(ctx context.Context, employerID string, credits int) error {
	item, err := s.refundTx(employerID, credits, s.now())
	if err != nil {
		return err
	}
	codes, err := s.transact(ctx, []types.TransactWriteItem{item})
	if conditionFailedAt(codes, 0) {
		return models.ErrNotFound
	}
	return err
}
