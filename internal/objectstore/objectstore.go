// Package objectstore materializes remote input files on local disk.
//
// Each provider implements RemoteSource; a Registry dispatches a URL to the
// first source that recognizes it.
package objectstore

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/gdfetch/internal/utils"
)

// RemoteFile identifies a file held by a remote store
type RemoteFile struct {
	Store  string `json:"store"`
	FileID string `json:"fileId"`
	// ResourceKey is set for link-shared files that require one
	ResourceKey string `json:"resourceKey,omitempty"`
}

// RemoteSource is a provider that can recognize, parse and download its own URLs
type RemoteSource interface {
	// Name returns the store tag used in RemoteFile.Store and default paths
	Name() string
	// CheckResource reports whether url belongs to this source
	CheckResource(url string) bool
	// ParseRemote extracts the file reference. url must have passed CheckResource.
	ParseRemote(url string) RemoteFile
	// Download fetches url and returns the local path
	Download(ctx context.Context, url, inputDir, dlDir string) (string, error)
}

// Registry dispatches URLs to registered remote sources
type Registry struct {
	sources []RemoteSource
}

// NewRegistry creates a registry checking sources in order
func NewRegistry(sources ...RemoteSource) *Registry {
	return &Registry{sources: sources}
}

// Register appends a source
func (r *Registry) Register(source RemoteSource) {
	r.sources = append(r.sources, source)
}

// Select returns the first source that accepts url, or nil
func (r *Registry) Select(url string) RemoteSource {
	for _, s := range r.sources {
		if s.CheckResource(url) {
			return s
		}
	}
	return nil
}

// IsRemote reports whether any source accepts url
func (r *Registry) IsRemote(url string) bool {
	return r.Select(url) != nil
}

// Download fetches url through the matching source
func (r *Registry) Download(ctx context.Context, url, inputDir, dlDir string) (string, error) {
	source := r.Select(url)
	if source == nil {
		return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnsupportedURL,
			fmt.Sprintf("No remote source handles %s", url)).
			WithContext("url", url).
			Build())
	}
	return source.Download(ctx, url, inputDir, dlDir)
}
