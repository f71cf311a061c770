package documents

import "time"

// Document represents an uploaded financial document owned by a user.
type Document struct {
	ID              string
	UserID          string
	FileName        string
	FileType        string
	MimeType        string
	SizeBytes       int64
	StorageProvider string
	StorageKey      string
	CreatedAt       time.Time
}
