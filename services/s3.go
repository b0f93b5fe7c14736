package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"talent-source/utils"
)

type S3Client interface {
	PutObject(ctx context.Context, bucketName string, objectKey string, body io.Reader, contentType string) error
	UploadFile(ctx context.Context, bucketName string, objectKey string, fileName string) error
	PresignGet(ctx context.Context, bucketName string, objectKey string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, bucketName string, objectKey string) error
}

type s3ClientImpl struct {
	client  *s3.Client
	presign *s3.PresignClient
}

func NewS3Service(cfg aws.Config, endpoint string) S3Client {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3ClientImpl{client: client, presign: s3.NewPresignClient(client)}
}

func (s *s3ClientImpl) PutObject(ctx context.Context, bucketName string, objectKey string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
		Body:   body,
	}
	if contentType == "" {
		contentType = contentTypeForKey(objectKey)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "EntityTooLarge" {
			return fmt.Errorf("object %s is too large for a single upload: %w", objectKey, err)
		}
		return fmt.Errorf("put object %s/%s: %w", bucketName, objectKey, err)
	}
	return nil
}

func (s *s3ClientImpl) UploadFile(ctx context.Context, bucketName string, objectKey string, fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("open %s for upload: %w", fileName, err)
	}
	defer file.Close()

	if err := s.PutObject(ctx, bucketName, objectKey, file, ""); err != nil {
		return err
	}
	err = s3.NewObjectExistsWaiter(s.client).Wait(
		ctx, &s3.HeadObjectInput{Bucket: aws.String(bucketName), Key: aws.String(objectKey)}, time.Minute)
	if err != nil {
		utils.Logger().Warn("object not visible after upload", zap.String("key", objectKey), zap.Error(err))
	}
	return nil
}

func (s *s3ClientImpl) PresignGet(ctx context.Context, bucketName string, objectKey string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucketName, objectKey, err)
	}
	return req.URL, nil
}

func (s *s3ClientImpl) DeleteObject(ctx context.Context, bucketName string, objectKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucketName, objectKey, err)
	}
	return nil
}

// WriteJSONLFile writes one JSON document per line.
func WriteJSONLFile[T any](filename string, rows []T) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create jsonl file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal row %d: %w", i, err)
		}
		if _, err := writer.Write(b); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush writer: %w", err)
	}
	return nil
}

func contentTypeForKey(key string) string {
	lower := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(lower, ".json"),
		strings.HasSuffix(lower, ".jsonl"),
		strings.HasSuffix(lower, ".json.gz"),
		strings.HasSuffix(lower, ".jsonl.gz"):
		return "application/json"
	case strings.HasSuffix(lower, ".txt"):
		return "text/plain"
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".doc"):
		return "application/msword"
	case strings.HasSuffix(lower, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(lower, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return ""
	}
}
