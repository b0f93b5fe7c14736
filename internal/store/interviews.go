package store

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"talent-source/models"
)

func openInterviewKey(employerID, candidateID string) string {
	return guardKey("interviews", "open", employerID, candidateID)
}

// CreateInterview stores a pending interview, reserves the employer/candidate
// pair and charges iv.CreditsCharged in one transaction.
func (s *Store) CreateInterview(ctx context.Context, iv *models.Interview) error {
	now := s.now()
	openGuard, err := guardTx(s.tables.Guards, openInterviewKey(iv.EmployerID, iv.CandidateID), iv.ID)
	if err != nil {
		return err
	}
	put, err := putTx(s.tables.Interviews, iv, notExists("ID"))
	if err != nil {
		return err
	}
	charge, err := s.chargeTx(iv.EmployerID, iv.CreditsCharged, now)
	if err != nil {
		return err
	}

	codes, err := s.transact(ctx, []types.TransactWriteItem{openGuard, put, charge})
	switch {
	case err == nil:
		return nil
	case conditionFailedAt(codes, 0):
		return models.ErrDuplicateRequest
	case conditionFailedAt(codes, 2):
		return s.chargeFailure(ctx, iv.EmployerID, now)
	case conditionFailedAt(codes, 1):
		return models.ErrConflict
	}
	return err
}

func (s *Store) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	var iv models.Interview
	if err := s.getItem(ctx, s.tables.Interviews, idKey(id), &iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

// Transition describes a guarded interview status change.
type Transition struct {
	From           models.InterviewStatus
	To             models.InterviewStatus
	ModeratorID    string
	ModerationNote string
	Refund         int
}

// TransitionInterview applies t only if the interview is still in t.From.
// Leaving the open states releases the employer/candidate pair.
func (s *Store) TransitionInterview(ctx context.Context, iv *models.Interview, t Transition) error {
	now := s.now()
	update := expression.Set(expression.Name("Status"), expression.Value(t.To)).
		Set(expression.Name("UpdatedAt"), expression.Value(now))
	if t.ModeratorID != "" {
		update = update.Set(expression.Name("ModeratorID"), expression.Value(t.ModeratorID))
	}
	if t.ModerationNote != "" {
		update = update.Set(expression.Name("ModerationNote"), expression.Value(t.ModerationNote))
	}
	cond := expression.Name("Status").Equal(expression.Value(t.From))
	item, err := updateTx(s.tables.Interviews, idKey(iv.ID), update, &cond)
	if err != nil {
		return err
	}
	items := []types.TransactWriteItem{item}

	if t.Refund > 0 {
		refund, err := s.refundTx(iv.EmployerID, t.Refund, now)
		if err != nil {
			return err
		}
		items = append(items, refund)
	}
	if t.From.Open() && !t.To.Open() {
		items = append(items, deleteTx(s.tables.Guards, stringKey("Key", openInterviewKey(iv.EmployerID, iv.CandidateID))))
	}

	codes, err := s.transact(ctx, items)
	if err == nil {
		iv.Status = t.To
		iv.UpdatedAt = now
		if t.ModeratorID != "" {
			iv.ModeratorID = t.ModeratorID
		}
		if t.ModerationNote != "" {
			iv.ModerationNote = t.ModerationNote
		}
		return nil
	}
	if conditionFailedAt(codes, 0) {
		return models.ErrConflict
	}
	return err
}

func (s *Store) ListInterviewsByEmployer(ctx context.Context, employerID string) ([]models.Interview, error) {
	return s.listInterviews(ctx, indexByEmployer, "EmployerID", employerID)
}

func (s *Store) ListInterviewsByCandidate(ctx context.Context, candidateID string) ([]models.Interview, error) {
	return s.listInterviews(ctx, indexByCandidate, "CandidateID", candidateID)
}

func (s *Store) ListInterviewsByStatus(ctx context.Context, status models.InterviewStatus) ([]models.Interview, error) {
	return s.listInterviews(ctx, indexByStatus, "Status", string(status))
}

func (s *Store) ListInterviews(ctx context.Context) ([]models.Interview, error) {
	var interviews []models.Interview
	if err := s.scanAll(ctx, s.tables.Interviews, nil, &interviews); err != nil {
		return nil, err
	}
	sortInterviews(interviews)
	return interviews, nil
}

func (s *Store) listInterviews(ctx context.Context, index, attr, value string) ([]models.Interview, error) {
	var interviews []models.Interview
	if err := s.queryIndex(ctx, s.tables.Interviews, index, attr, value, &interviews); err != nil {
		return nil, err
	}
	sortInterviews(interviews)
	return interviews, nil
}

func sortInterviews(interviews []models.Interview) {
	sortNewestFirst(interviews, func(iv models.Interview) time.Time { return iv.CreatedAt })
}

// CreateUnlock records the unlock and charges for it. ErrConflict means the
// employer had already unlocked the candidate and nothing was charged.
func (s *Store) CreateUnlock(ctx context.Context, u *models.ContactUnlock) error {
	now := s.now()
	cond := expression.AttributeNotExists(expression.Name("EmployerID"))
	put, err := putTx(s.tables.Unlocks, u, &cond)
	if err != nil {
		return err
	}
	charge, err := s.chargeTx(u.EmployerID, u.CreditsCharged, now)
	if err != nil {
		return err
	}
	codes, err := s.transact(ctx, []types.TransactWriteItem{put, charge})
	switch {
	case err == nil:
		return nil
	case conditionFailedAt(codes, 0):
		return models.ErrConflict
	case conditionFailedAt(codes, 1):
		return s.chargeFailure(ctx, u.EmployerID, now)
	}
	return err
}

func (s *Store) GetUnlock(ctx context.Context, employerID, candidateID string) (*models.ContactUnlock, error) {
	key := map[string]types.AttributeValue{
		"EmployerID":  &types.AttributeValueMemberS{Value: employerID},
		"CandidateID": &types.AttributeValueMemberS{Value: candidateID},
	}
	var u models.ContactUnlock
	if err := s.getItem(ctx, s.tables.Unlocks, key, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
