// Package repository stores archived rows moved out of the live brokering
// tables by the retention sweeper: completed availability and echo jobs
// past 24h, terminal bookings past 90d.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an archived row is unknown.
var ErrNotFound = errors.New("archived row not found")

// ArchivedJob is one availability job past its retention window.
type ArchivedJob struct {
	ID              string
	AgentID         string
	Criteria        []byte
	ResultCount     int
	ExpectedSources []string
	CreatedAt       time.Time
	CompletedAt     *time.Time
	ArchivedAt      time.Time
}

// ArchivedEchoJob is one echo campaign past its retention window.
type ArchivedEchoJob struct {
	ID              string
	RequestedBy     string
	ItemCount       int
	ExpectedSources []string
	CreatedAt       time.Time
	CompletedAt     *time.Time
	ArchivedAt      time.Time
}

// ArchivedBooking is one terminal booking past its retention window.
type ArchivedBooking struct {
	ID          string
	AgentID     string
	AgreementID string
	SourceID    string
	SourceRef   string
	Status      string
	Snapshot    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ArchivedAt  time.Time
}

// Statistics aggregates one company's archive.
type Statistics struct {
	ArchivedJobs     int64
	ArchivedEchoJobs int64
	ArchivedBookings int64
	OldestArchivedAt *time.Time
}

// HistoryRepository stores and reads archived rows.
type HistoryRepository interface {
	SaveJob(ctx context.Context, job *ArchivedJob) error
	SaveEchoJob(ctx context.Context, job *ArchivedEchoJob) error
	SaveBooking(ctx context.Context, b *ArchivedBooking) error
	ListJobs(ctx context.Context, agentID string, limit, offset int) ([]*ArchivedJob, int64, error)
	ListBookings(ctx context.Context, agentID, status string, limit, offset int) ([]*ArchivedBooking, int64, error)
	Statistics(ctx context.Context, companyID string) (*Statistics, error)
}
