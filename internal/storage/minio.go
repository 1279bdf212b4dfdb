package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"acquisition_backend/platform/config"
)

const (
	// PresignedURLTTL is the expiration time for presigned download URLs.
	PresignedURLTTL = 15 * time.Minute

	// maxTranscriptBytes caps how much FetchText reads back into memory.
	maxTranscriptBytes = 4 << 20
)

// MinIOStore implements TranscriptStore using MinIO.
type MinIOStore struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
}

// NewMinIOStore creates a MinIO-backed transcript store.
func NewMinIOStore(cfg config.StorageConfig) (*MinIOStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{
		client:      client,
		bucket:      cfg.GetMinIOBucketTranscripts(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
	}, nil
}

// EnsureBucket creates the transcripts bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}

	return nil
}

// Put stores a transcript and returns its object key. The key embeds a
// random suffix so re-uploads never overwrite an earlier transcript.
func (s *MinIOStore) Put(ctx context.Context, leadID uuid.UUID, reader io.Reader, size int64) (string, error) {
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return "", ErrTooLarge
	}

	fileKey := fmt.Sprintf("%s/%s.txt", leadID, uuid.New().String()[:8])
	_, err := s.client.PutObject(ctx, s.bucket, fileKey, reader, size, minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload transcript %s: %w", fileKey, err)
	}
	return fileKey, nil
}

// FetchText reads a transcript back as a string.
func (s *MinIOStore) FetchText(ctx context.Context, ref string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get object %s: %w", ref, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxTranscriptBytes))
	if err != nil {
		if isMinIONotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read transcript %s: %w", ref, err)
	}
	return string(data), nil
}

// PresignDownload creates a presigned URL for downloading the transcript.
func (s *MinIOStore) PresignDownload(ctx context.Context, ref string) (*PresignedURL, error) {
	expiresAt := time.Now().Add(PresignedURLTTL)
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, ref, PresignedURLTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}

	return &PresignedURL{
		URL:       presignedURL.String(),
		FileKey:   ref,
		ExpiresAt: expiresAt,
	}, nil
}

// Delete removes the transcript object.
func (s *MinIOStore) Delete(ctx context.Context, ref string) error {
	err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", ref, err)
	}
	return nil
}

func isMinIONotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}

var _ TranscriptStore = (*MinIOStore)(nil)
