package mocks

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/dl-alexandre/gdfetch/internal/api"
	"github.com/dl-alexandre/gdfetch/internal/types"
)

// MockDriveService mocks the Drive service handle used by the resolver
type MockDriveService struct {
	GetFileFunc  func(fileID, fields string) (*types.DriveFile, error)
	GetMediaFunc func(fileID string) api.MediaRequest

	mu            sync.Mutex
	GetFileCalls  []string
	GetMediaCalls []string
}

// NewMockDriveService creates a mock answering with default metadata
func NewMockDriveService() *MockDriveService {
	return &MockDriveService{}
}

// GetFile mocks a metadata lookup
func (m *MockDriveService) GetFile(_ context.Context, _ *types.RequestContext, fileID, fields string) (*types.DriveFile, error) {
	m.mu.Lock()
	m.GetFileCalls = append(m.GetFileCalls, fileID)
	m.mu.Unlock()

	if m.GetFileFunc != nil {
		return m.GetFileFunc(fileID, fields)
	}
	return &types.DriveFile{
		ID:   fileID,
		Name: "mock-file.txt",
	}, nil
}

// GetMedia mocks building a media request
func (m *MockDriveService) GetMedia(fileID string) api.MediaRequest {
	m.mu.Lock()
	m.GetMediaCalls = append(m.GetMediaCalls, fileID)
	m.mu.Unlock()

	if m.GetMediaFunc != nil {
		return m.GetMediaFunc(fileID)
	}
	return &MockMediaRequest{FileID: fileID}
}

// MockMediaRequest serves Content from memory
type MockMediaRequest struct {
	FileID  string
	Content []byte
	// FetchFunc overrides the in-memory behavior when set
	FetchFunc func(offset, length int64) (*http.Response, error)
}

// FetchRange returns the requested slice of Content without a Content-Range
// header, so a download completes once a short chunk arrives.
func (r *MockMediaRequest) FetchRange(_ context.Context, offset, length int64) (*http.Response, error) {
	if r.FetchFunc != nil {
		return r.FetchFunc(offset, length)
	}
	size := int64(len(r.Content))
	if offset > size {
		offset = size
	}
	end := offset + length
	if end > size {
		end = size
	}
	return &http.Response{
		StatusCode:    http.StatusPartialContent,
		Header:        http.Header{},
		ContentLength: end - offset,
		Body:          io.NopCloser(bytes.NewReader(r.Content[offset:end])),
	}, nil
}
