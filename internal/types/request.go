package types

// RequestType classifies an API operation for logging and error context
type RequestType string

const (
	RequestTypeMetadata RequestType = "metadata"
	RequestTypeDownload RequestType = "download"
)

// RequestContext carries per-operation tracing information through the API layer
type RequestContext struct {
	Store           string      `json:"store"`
	InvolvedFileIDs []string    `json:"involvedFileIds"`
	RequestType     RequestType `json:"requestType"`
	TraceID         string      `json:"traceId"`
}
