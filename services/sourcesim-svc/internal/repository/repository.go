// Package repository persists probe campaign results for later inspection.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrCampaignNotFound is returned when a campaign id is unknown.
var ErrCampaignNotFound = errors.New("campaign not found")

// Campaign is one stored campaign result row.
type Campaign struct {
	ID          string
	Kind        string
	AgentID     string
	Requests    int
	Succeeded   int
	Failed      int
	SuccessRate float64
	MeanMs      float64
	P95Ms       float64
	P99Ms       float64
	ItemsTotal  int
	TimedOut    int
	Errored     int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// CampaignRepository stores campaign results.
type CampaignRepository interface {
	Save(ctx context.Context, c *Campaign) error
	Get(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context, limit, offset int) ([]*Campaign, error)
}
