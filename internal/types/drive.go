package types

// DriveFile is the subset of Drive file metadata needed to materialize a file locally
type DriveFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	MD5Checksum string `json:"md5Checksum,omitempty"`
	ResourceKey string `json:"resourceKey,omitempty"`
}
