package candidates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/utils"
)

type FileKind string

const (
	KindCV    FileKind = "cv"
	KindPhoto FileKind = "photo"
)

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

type uploadRule struct {
	maxBytes   int64
	extensions []string
}

var uploadRules = map[FileKind]uploadRule{
	KindCV:    {maxBytes: 5 << 20, extensions: []string{"pdf", "doc", "docx"}},
	KindPhoto: {maxBytes: 2 << 20, extensions: []string{"jpg", "jpeg", "png", "webp"}},
}

func ParseFileKind(value string) (FileKind, error) {
	kind := FileKind(strings.ToLower(value))
	if _, ok := uploadRules[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, value)
	}
	return kind, nil
}

// UploadKey is candidates/<id>/<kind>-<uuid>.<ext>.
func UploadKey(candidateID string, kind FileKind, ext string) string {
	return fmt.Sprintf("candidates/%s/%s-%s.%s", candidateID, kind, uuid.NewString(), ext)
}

// Upload stores a CV or photo and points the profile at it.
func (s *Service) Upload(ctx context.Context, candidateID string, kind FileKind, filename string, body io.Reader) (*models.Candidate, error) {
	rule, ok := uploadRules[kind]
	if !ok {
		return nil, ErrUnsupportedFile
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if !slices.Contains(rule.extensions, ext) {
		return nil, fmt.Errorf("%w: .%s", ErrUnsupportedFile, ext)
	}
	data, err := io.ReadAll(io.LimitReader(body, rule.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > rule.maxBytes {
		return nil, ErrFileTooLarge
	}

	if _, err := s.store.GetCandidate(ctx, candidateID); err != nil {
		return nil, err
	}
	key := UploadKey(candidateID, kind, ext)
	if err := s.files.PutObject(ctx, s.bucket, key, bytes.NewReader(data), ""); err != nil {
		return nil, err
	}

	field := "CVKey"
	if kind == KindPhoto {
		field = "PhotoKey"
	}
	c, previous, err := s.store.SetCandidateFile(ctx, candidateID, field, key)
	if err != nil {
		s.deleteFile(ctx, key)
		return nil, err
	}
	if previous != "" && previous != key {
		s.deleteFile(ctx, previous)
	}
	utils.Logger().Info("candidate file uploaded",
		zap.String("candidate", candidateID), zap.String("kind", string(kind)),
		zap.String("key", key), zap.String("replaced", previous), zap.Int("bytes", len(data)))
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Candidates, ID: candidateID})
	return c, nil
}

// deleteFile removes an object no profile points at. Failures only leave
// an orphan behind.
func (s *Service) deleteFile(ctx context.Context, key string) {
	if err := s.files.DeleteObject(ctx, s.bucket, key); err != nil {
		utils.Logger().Warn("delete candidate file", zap.String("key", key), zap.Error(err))
	}
}
