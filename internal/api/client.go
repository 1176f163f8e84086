package api

import (
	"context"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/types"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Client is the authenticated Drive service handle used by the resolver.
// It issues metadata requests with retry and builds media requests for chunked downloads.
type Client struct {
	service        *drive.Service
	resourceKeyMgr *ResourceKeyManager
	retrier        *Retrier
	logger         logging.Logger
}

// NewClient creates a new Drive API client
func NewClient(service *drive.Service, maxRetries int, retryDelayMs int, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Client{
		service:        service,
		resourceKeyMgr: NewResourceKeyManager(),
		retrier:        NewRetrier(maxRetries, time.Duration(retryDelayMs)*time.Millisecond, logger),
		logger:         logger,
	}
}

// GetFile fetches file metadata restricted to fields
func (c *Client) GetFile(ctx context.Context, reqCtx *types.RequestContext, fileID string, fields string) (*types.DriveFile, error) {
	call := c.service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx)
	if fields != "" {
		call = call.Fields(googleapi.Field(fields))
	}
	if header := c.resourceKeyMgr.BuildHeader(fileID); header != "" {
		call.Header().Set(ResourceKeyHeader, header)
	}

	result, err := ExecuteWithRetry(ctx, c.retrier, reqCtx, func() (*drive.File, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(fileID, result), nil
}

// GetMedia returns a request for the raw content of fileID
func (c *Client) GetMedia(fileID string) MediaRequest {
	return &driveMediaRequest{client: c, fileID: fileID}
}

// ResourceKeys returns the resource key manager
func (c *Client) ResourceKeys() *ResourceKeyManager {
	return c.resourceKeyMgr
}

func convertDriveFile(requestedID string, f *drive.File) *types.DriveFile {
	id := f.Id
	if id == "" {
		id = requestedID
	}
	return &types.DriveFile{
		ID:          id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		MD5Checksum: f.Md5Checksum,
		ResourceKey: f.ResourceKey,
	}
}
