package api

import (
	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/google/uuid"
)

// NewRequestContext creates a request context with a fresh trace ID
func NewRequestContext(store string, requestType types.RequestType, fileIDs ...string) *types.RequestContext {
	ids := make([]string, 0, len(fileIDs))
	ids = append(ids, fileIDs...)
	return &types.RequestContext{
		Store:           store,
		InvolvedFileIDs: ids,
		RequestType:     requestType,
		TraceID:         uuid.New().String(),
	}
}
