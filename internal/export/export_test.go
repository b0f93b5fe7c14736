package export

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"talent-source/models"
)

type memStore struct {
	candidates []models.Candidate
	interviews []models.Interview
}

func (m *memStore) ListCandidates(_ context.Context, f models.CandidateFilter) ([]models.Candidate, error) {
	var out []models.Candidate
	for _, c := range m.candidates {
		if f.Match(&c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListInterviews(context.Context) ([]models.Interview, error) {
	return append([]models.Interview(nil), m.interviews...), nil
}

func (m *memStore) GetCandidate(_ context.Context, id string) (*models.Candidate, error) {
	for _, c := range m.candidates {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) GetEmployer(_ context.Context, id string) (*models.Employer, error) {
	if id == "e1" {
		return &models.Employer{ID: "e1", CompanyName: "Acme"}, nil
	}
	return nil, models.ErrNotFound
}

type upload struct {
	bucket, key string
	body        string
}

type fakeFiles struct {
	uploads []upload
}

func (f *fakeFiles) PutObject(_ context.Context, bucket, key string, body io.Reader, _ string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, upload{bucket, key, string(b)})
	return nil
}

func (f *fakeFiles) UploadFile(_ context.Context, bucket, key, fileName string) error {
	b, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, upload{bucket, key, string(b)})
	return nil
}

func (f *fakeFiles) PresignGet(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func (f *fakeFiles) DeleteObject(context.Context, string, string) error { return nil }

func day(d, h int) time.Time {
	return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC)
}

func TestDateRange(t *testing.T) {
	now := day(9, 10)
	tests := []struct {
		name       string
		start, end string
		wantStart  string
		wantEnd    string
		wantErr    bool
	}{
		{name: "defaults to today", wantStart: "2025-03-09", wantEnd: "2025-03-09"},
		{name: "start only", start: "2025-03-01", wantStart: "2025-03-01", wantEnd: "2025-03-01"},
		{name: "end only", end: "2025-03-02", wantStart: "2025-03-02", wantEnd: "2025-03-02"},
		{name: "range", start: "2025-03-01", end: "2025-03-05", wantStart: "2025-03-01", wantEnd: "2025-03-05"},
		{name: "reversed", start: "2025-03-05", end: "2025-03-01", wantErr: true},
		{name: "bad format", start: "03/01/2025", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := DateRange(tt.start, tt.end, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestCandidatesSnapshotGroupsByDay(t *testing.T) {
	st := &memStore{candidates: []models.Candidate{
		{ID: "c1", Name: "Sara", Status: models.CandidateActive, CreatedAt: day(1, 15)},
		{ID: "c2", Name: "Omar", Status: models.CandidateActive, CreatedAt: day(1, 9)},
		{ID: "c3", Name: "Lina", Status: models.CandidateActive, CreatedAt: day(2, 9)},
		{ID: "c4", Name: "Hidden", Status: models.CandidateHidden, CreatedAt: day(1, 9)},
		{ID: "c5", Name: "Late", Status: models.CandidateActive, CreatedAt: day(8, 9)},
	}}
	files := &fakeFiles{}
	svc := NewService(st, files, "snapshots-bucket", "/snapshots/candidates/")

	res, err := svc.CandidatesSnapshot(context.Background(), "2025-03-01", "2025-03-02")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, []string{"snapshots/candidates/2025-03-01.jsonl", "snapshots/candidates/2025-03-02.jsonl"}, res.Keys)

	require.Len(t, files.uploads, 2)
	assert.Equal(t, "snapshots-bucket", files.uploads[0].bucket)
	lines := strings.Split(strings.TrimSpace(files.uploads[0].body), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"c2"`)
	assert.Contains(t, lines[1], `"id":"c1"`)
	assert.NotContains(t, files.uploads[0].body, "passwordHash")
}

func TestCandidatesSnapshotRequiresBucket(t *testing.T) {
	svc := NewService(&memStore{}, &fakeFiles{}, "", "")
	_, err := svc.CandidatesSnapshot(context.Background(), "2025-03-01", "")
	assert.Error(t, err)
}

func TestInterviewsReport(t *testing.T) {
	st := &memStore{
		candidates: []models.Candidate{{ID: "c1", Name: "Sara"}},
		interviews: []models.Interview{
			{ID: "i2", EmployerID: "e1", CandidateID: "c1", Status: models.InterviewApproved, ProposedAt: day(5, 10), CreditsCharged: 3, BillingClass: models.BillingClass("B")},
			{ID: "i1", EmployerID: "e1", CandidateID: "c1", Status: models.InterviewPending, ProposedAt: day(4, 10), CreditsCharged: 3},
			{ID: "i3", EmployerID: "gone", CandidateID: "c1", Status: models.InterviewRejected, ProposedAt: day(6, 10), CreditsCharged: 3},
		},
	}
	svc := NewService(st, &fakeFiles{}, "", "")

	var buf bytes.Buffer
	require.NoError(t, svc.InterviewsReport(context.Background(), &buf, ""))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, interviewsSheet}, f.GetSheetList())

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"pending", "1"}, summary[1])
	assert.Equal(t, []string{"approved", "1"}, summary[2])
	assert.Equal(t, []string{"rejected", "1"}, summary[3])
	assert.Equal(t, []string{"total", "3"}, summary[6])
	assert.Equal(t, []string{"credits kept", "6"}, summary[7])

	rows, err := f.GetRows(interviewsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "i1", rows[1][0])
	assert.Equal(t, "Acme", rows[1][3])
	assert.Equal(t, "Sara", rows[1][4])
	assert.Equal(t, "gone", rows[3][3])
}

func TestInterviewsReportFiltersStatus(t *testing.T) {
	st := &memStore{interviews: []models.Interview{
		{ID: "i1", Status: models.InterviewPending, ProposedAt: day(4, 10)},
		{ID: "i2", Status: models.InterviewCompleted, ProposedAt: day(5, 10)},
	}}
	svc := NewService(st, &fakeFiles{}, "", "")

	var buf bytes.Buffer
	require.NoError(t, svc.InterviewsReport(context.Background(), &buf, models.InterviewCompleted))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(interviewsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "i2", rows[1][0])
}
