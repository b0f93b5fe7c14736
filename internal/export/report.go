package export

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"talent-source/internal/i18n"
	"talent-source/models"
)

const (
	summarySheet    = "Summary"
	interviewsSheet = "Interviews"
)

var reportStatuses = []models.InterviewStatus{
	models.InterviewPending,
	models.InterviewApproved,
	models.InterviewRejected,
	models.InterviewCancelled,
	models.InterviewCompleted,
}

var interviewColumns = []string{
	"ID", "Status", "Proposed At", "Employer", "Candidate", "Class", "Credits", "Location", "Moderation Note", "Created At",
}

// InterviewsReport writes an xlsx workbook with per-status counts and one row
// per interview, optionally narrowed to status.
func (s *Service) InterviewsReport(ctx context.Context, w io.Writer, status models.InterviewStatus) error {
	list, err := s.store.ListInterviews(ctx)
	if err != nil {
		return fmt.Errorf("list interviews: %w", err)
	}
	if status != "" {
		filtered := list[:0:0]
		for _, iv := range list {
			if iv.Status == status {
				filtered = append(filtered, iv)
			}
		}
		list = filtered
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ProposedAt.Before(list[j].ProposedAt) })

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(interviewsSheet); err != nil {
		return err
	}
	if err := writeSummary(f, list); err != nil {
		return err
	}

	names := newNameCache(ctx, s.store)
	if err := f.SetSheetRow(interviewsSheet, "A1", &interviewColumns); err != nil {
		return err
	}
	for i, iv := range list {
		row := []any{
			iv.ID,
			string(iv.Status),
			i18n.FormatTime(iv.ProposedAt),
			names.employer(iv.EmployerID),
			names.candidate(iv.CandidateID),
			string(iv.BillingClass),
			iv.CreditsCharged,
			iv.Location,
			iv.ModerationNote,
			i18n.FormatTime(iv.CreatedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(interviewsSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := styleHeader(f, interviewsSheet, len(interviewColumns)); err != nil {
		return err
	}
	_ = f.SetColWidth(interviewsSheet, "A", "J", 20)

	_, err = f.WriteTo(w)
	return err
}

func writeSummary(f *excelize.File, list []models.Interview) error {
	counts := make(map[models.InterviewStatus]int)
	credits := 0
	for _, iv := range list {
		counts[iv.Status]++
		if iv.Status != models.InterviewRejected && iv.Status != models.InterviewCancelled {
			credits += iv.CreditsCharged
		}
	}
	if err := f.SetSheetRow(summarySheet, "A1", &[]any{"Status", "Interviews"}); err != nil {
		return err
	}
	for i, st := range reportStatuses {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(summarySheet, cell, &[]any{string(st), counts[st]}); err != nil {
			return err
		}
	}
	totalRow := len(reportStatuses) + 2
	if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", totalRow), &[]any{"total", len(list)}); err != nil {
		return err
	}
	if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", totalRow+1), &[]any{"credits kept", credits}); err != nil {
		return err
	}
	_ = f.SetColWidth(summarySheet, "A", "B", 18)
	return styleHeader(f, summarySheet, 2)
}

func styleHeader(f *excelize.File, sheet string, columns int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(columns, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

// nameCache resolves party display names once per report.
type nameCache struct {
	ctx        context.Context
	store      Store
	employers  map[string]string
	candidates map[string]string
}

func newNameCache(ctx context.Context, store Store) *nameCache {
	return &nameCache{ctx: ctx, store: store, employers: map[string]string{}, candidates: map[string]string{}}
}

func (n *nameCache) employer(id string) string {
	if name, ok := n.employers[id]; ok {
		return name
	}
	name := id
	if e, err := n.store.GetEmployer(n.ctx, id); err == nil {
		name = e.CompanyName
	}
	n.employers[id] = name
	return name
}

func (n *nameCache) candidate(id string) string {
	if name, ok := n.candidates[id]; ok {
		return name
	}
	name := id
	if c, err := n.store.GetCandidate(n.ctx, id); err == nil {
		name = c.Name
	}
	n.candidates[id] = name
	return name
}
