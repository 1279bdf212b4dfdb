// Package storage keeps meeting transcripts in S3-compatible object storage.
// Lead records hold only the object reference; the bytes live here.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// PresignedURL contains the URL and metadata for a presigned download.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var (
	// ErrNotFound means no transcript exists under the given reference.
	ErrNotFound = errors.New("storage: transcript not found")
	// ErrTooLarge means the transcript exceeds the configured size limit.
	ErrTooLarge = errors.New("storage: transcript exceeds size limit")
)

// TranscriptStore reads and writes transcript objects.
type TranscriptStore interface {
	// Put stores a transcript for the lead and returns its reference.
	Put(ctx context.Context, leadID uuid.UUID, reader io.Reader, size int64) (string, error)

	// FetchText reads the transcript back as a string.
	FetchText(ctx context.Context, ref string) (string, error)

	// PresignDownload creates a short-lived download URL for the transcript.
	PresignDownload(ctx context.Context, ref string) (*PresignedURL, error)

	// Delete removes the transcript object.
	Delete(ctx context.Context, ref string) error
}
