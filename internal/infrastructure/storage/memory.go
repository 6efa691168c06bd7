package storage

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	remittanceapp "github.com/erp/remittance/internal/application/remittance"
)

var _ remittanceapp.ReportStore = (*MemoryReportStore)(nil)

// StoredObject is an object held by MemoryReportStore
type StoredObject struct {
	Data        []byte
	ContentType string
}

// MemoryReportStore keeps report objects in process. It backs local
// development when storage is disabled, and tests.
type MemoryReportStore struct {
	// BaseURL prefixes generated download URLs
	BaseURL string

	mu      sync.RWMutex
	objects map[string]StoredObject
}

// NewMemoryReportStore creates an empty store
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{
		BaseURL: "memory://reports",
		objects: make(map[string]StoredObject),
	}
}

// Upload stores a copy of data under key
func (s *MemoryReportStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errKeyRequired
	}
	s.mu.Lock()
	s.objects[key] = StoredObject{Data: append([]byte(nil), data...), ContentType: contentType}
	s.mu.Unlock()
	return nil
}

// ObjectExists reports whether key was uploaded
func (s *MemoryReportStore) ObjectExists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errKeyRequired
	}
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	return ok, nil
}

// DeletePrefix removes every object whose key starts with prefix
func (s *MemoryReportStore) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		return errKeyRequired
	}
	s.mu.Lock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	s.mu.Unlock()
	return nil
}

// GenerateDownloadURL returns BaseURL/key with an expiry query parameter
func (s *MemoryReportStore) GenerateDownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errKeyRequired
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/" + key + "?expires=" + url.QueryEscape(expiresAt.UTC().Format(time.RFC3339)), expiresAt, nil
}

// Object returns the stored object for key
func (s *MemoryReportStore) Object(key string) (StoredObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}
