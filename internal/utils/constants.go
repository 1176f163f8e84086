package utils

// Download transfer settings (binary units)
const (
	DownloadChunkSize    = 8 * 1024 * 1024 // 8 MiB
	DownloadChunkRetries = 5
)

// OAuth scopes
const ScopeFull = "https://www.googleapis.com/auth/drive"

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Schema version
const SchemaVersion = "1.0"
