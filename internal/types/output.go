package types

import "time"

// OutputFormat selects how command results are printed
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// CLIOutput is the JSON envelope written by every command
type CLIOutput struct {
	SchemaVersion string      `json:"schemaVersion"`
	TraceID       string      `json:"traceId"`
	Command       string      `json:"command"`
	Data          interface{} `json:"data"`
	Errors        []CLIError  `json:"errors"`
}

// FetchResult describes one materialized remote file
type FetchResult struct {
	URL      string        `json:"url"`
	Store    string        `json:"store"`
	FileID   string        `json:"fileId"`
	Path     string        `json:"path"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"durationNs"`
}

// GlobalFlags holds flags shared by every command
type GlobalFlags struct {
	Config       string
	OutputFormat OutputFormat
	JSON         bool
	Quiet        bool
	Verbose      bool
	LogFile      string
}

type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	EmptyMessage() string
}

type TableRenderable interface {
	AsTableRenderer() TableRenderer
}
