// Package export writes admin-facing dumps of marketplace data: the daily
// candidates snapshot on S3 and the interviews spreadsheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

const DateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("invalid snapshot date range")

type Store interface {
	ListCandidates(ctx context.Context, f models.CandidateFilter) ([]models.Candidate, error)
	ListInterviews(ctx context.Context) ([]models.Interview, error)
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	GetEmployer(ctx context.Context, id string) (*models.Employer, error)
}

type Service struct {
	store  Store
	files  services.S3Client
	bucket string
	prefix string
	now    func() time.Time
}

func NewService(store Store, files services.S3Client, bucket, prefix string) *Service {
	return &Service{
		store:  store,
		files:  files,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type SnapshotResult struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Candidates int      `json:"candidates"`
	Keys       []string `json:"keys"`
}

// DateRange resolves optional start and end dates. Both empty means the day
// of now in its location; a single value stands for both ends.
func DateRange(start, end string, now time.Time) (string, string, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if start == "" && end == "" {
		today := now.Format(DateLayout)
		return today, today, nil
	}
	if start == "" {
		start = end
	}
	if end == "" {
		end = start
	}
	startTime, err := time.Parse(DateLayout, start)
	if err != nil {
		return "", "", fmt.Errorf("%w: start date: %v", ErrInvalidRange, err)
	}
	endTime, err := time.Parse(DateLayout, end)
	if err != nil {
		return "", "", fmt.Errorf("%w: end date: %v", ErrInvalidRange, err)
	}
	if endTime.Before(startTime) {
		return "", "", fmt.Errorf("%w: end date must be on or after start date", ErrInvalidRange)
	}
	return startTime.Format(DateLayout), endTime.Format(DateLayout), nil
}

// CandidatesSnapshot uploads one JSONL file per day for active candidates
// created between start and end (inclusive).
func (s *Service) CandidatesSnapshot(ctx context.Context, start, end string) (*SnapshotResult, error) {
	start, end, err := DateRange(start, end, s.now())
	if err != nil {
		return nil, err
	}
	if s.bucket == "" {
		return nil, errors.New("snapshot bucket is not configured")
	}

	list, err := s.store.ListCandidates(ctx, models.CandidateFilter{Status: models.CandidateActive})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	groups := groupByCreatedDate(list, start, end)

	result := &SnapshotResult{StartDate: start, EndDate: end}
	dates := make([]string, 0, len(groups))
	for date := range groups {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	tempDir := os.TempDir()
	for _, date := range dates {
		filename := date + ".jsonl"
		localPath := filepath.Join(tempDir, "candidates-"+filename)
		if err := services.WriteJSONLFile(localPath, groups[date]); err != nil {
			return nil, fmt.Errorf("write candidates for %s: %w", date, err)
		}
		key := s.objectKey(filename)
		err := s.files.UploadFile(ctx, s.bucket, key, localPath)
		_ = os.Remove(localPath)
		if err != nil {
			return nil, fmt.Errorf("upload snapshot %s: %w", date, err)
		}
		result.Keys = append(result.Keys, key)
		result.Candidates += len(groups[date])
	}

	utils.Logger().Info("candidates snapshot",
		zap.String("start", start), zap.String("end", end),
		zap.Int("candidates", result.Candidates), zap.Int("files", len(result.Keys)))
	return result, nil
}

func (s *Service) objectKey(filename string) string {
	if s.prefix == "" {
		return filename
	}
	return s.prefix + "/" + filename
}

// groupByCreatedDate buckets candidates by creation day, oldest first within
// a day, dropping days outside [start, end].
func groupByCreatedDate(list []models.Candidate, start, end string) map[string][]models.Candidate {
	grouped := make(map[string][]models.Candidate)
	for _, c := range list {
		date := c.CreatedAt.UTC().Format(DateLayout)
		if date < start || date > end {
			continue
		}
		grouped[date] = append(grouped[date], c)
	}
	for _, rows := range grouped {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	}
	return grouped
}
