package repository

import "time"

// StoredReport is one generated report kept for later download.
type StoredReport struct {
	ID        string
	CompanyID string
	Kind      string
	Format    string
	Title     string
	Filename  string
	MimeType  string
	SizeBytes int64
	Content   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ReportSummary is the listing projection, without the content blob.
type ReportSummary struct {
	ID        string
	CompanyID string
	Kind      string
	Format    string
	Title     string
	Filename  string
	SizeBytes int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
