package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps transcripts in process memory. It serves development
// setups without MinIO and tests; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]string
}

// NewMemoryStore creates an empty in-memory transcript store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]string)}
}

func (s *MemoryStore) Put(ctx context.Context, leadID uuid.UUID, reader io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(reader, maxTranscriptBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}

	ref := fmt.Sprintf("%s/%s.txt", leadID, uuid.New().String()[:8])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = string(data)
	return ref, nil
}

func (s *MemoryStore) FetchText(ctx context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text, ok := s.objects[ref]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

func (s *MemoryStore) PresignDownload(ctx context.Context, ref string) (*PresignedURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[ref]; !ok {
		return nil, ErrNotFound
	}
	return &PresignedURL{
		URL:       "memory://" + ref,
		FileKey:   ref,
		ExpiresAt: time.Now().Add(PresignedURLTTL),
	}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	return nil
}

var _ TranscriptStore = (*MemoryStore)(nil)
