// Package store persists the desk's local JSON blobs: grading settings, theme,
// rubric editor settings, the rubric draft and the cached workspace.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/gema-grader/internal/observability"
)

// Keys of the locally persisted blobs.
const (
	KeyGradeSettings  = "grade-settings"
	KeyTheme          = "theme"
	KeyEditorSettings = "editor-settings"
	KeyRubricDraft    = "rubric-draft"
	KeyWorkspace      = "workspace-state-v1"
)

var (
	// ErrNotFound indicates no blob is stored under the key.
	ErrNotFound = errors.New("store: key not found")
	// ErrQuotaExceeded indicates the encoded blob is larger than the store allows.
	ErrQuotaExceeded = errors.New("store: value exceeds storage quota")
)

// Store reads and writes JSON-serialisable values by key.
type Store interface {
	Load(ctx context.Context, key string, dst interface{}) error
	Save(ctx context.Context, key string, value interface{}) error
	Remove(ctx context.Context, key string) error
	Backend() string
}

// backend is the raw byte storage behind a Store.
type backend interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte) error
	del(ctx context.Context, key string) error
	name() string
}

type jsonStore struct {
	backend  backend
	maxBytes int
}

func newJSONStore(b backend, maxBytes int) *jsonStore {
	return &jsonStore{backend: b, maxBytes: maxBytes}
}

func (s *jsonStore) Backend() string {
	return s.backend.name()
}

func (s *jsonStore) Load(ctx context.Context, key string, dst interface{}) error {
	raw, err := s.backend.get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}

func (s *jsonStore) Save(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	if s.maxBytes > 0 && len(payload) > s.maxBytes {
		observability.StoreWriteFailures().WithLabelValues(s.backend.name(), "quota").Inc()
		return fmt.Errorf("store: %s is %d bytes: %w", key, len(payload), ErrQuotaExceeded)
	}
	if err := s.backend.put(ctx, key, payload); err != nil {
		observability.StoreWriteFailures().WithLabelValues(s.backend.name(), "backend").Inc()
		return err
	}
	return nil
}

func (s *jsonStore) Remove(ctx context.Context, key string) error {
	return s.backend.del(ctx, key)
}
