package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"carbroker/pkg/database"
)

// PostgresCampaignRepository is the Postgres CampaignRepository.
type PostgresCampaignRepository struct {
	db database.DB
}

// NewPostgresCampaignRepository creates the repository.
func NewPostgresCampaignRepository(db database.DB) *PostgresCampaignRepository {
	return &PostgresCampaignRepository{db: db}
}

const campaignColumns = `id, kind, agent_id, requests, succeeded, failed, success_rate, mean_ms, p95_ms, p99_ms, items_total, timed_out, errored, started_at, finished_at`

func (r *PostgresCampaignRepository) Save(ctx context.Context, c *Campaign) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO probe_campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, c.ID, c.Kind, c.AgentID, c.Requests, c.Succeeded, c.Failed, c.SuccessRate,
		c.MeanMs, c.P95Ms, c.P99Ms, c.ItemsTotal, c.TimedOut, c.Errored, c.StartedAt, c.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	return nil
}

func (r *PostgresCampaignRepository) Get(ctx context.Context, id string) (*Campaign, error) {
	c := &Campaign{}
	err := r.db.QueryRow(ctx, `SELECT `+campaignColumns+` FROM probe_campaigns WHERE id = $1`, id).Scan(
		&c.ID, &c.Kind, &c.AgentID, &c.Requests, &c.Succeeded, &c.Failed, &c.SuccessRate,
		&c.MeanMs, &c.P95Ms, &c.P99Ms, &c.ItemsTotal, &c.TimedOut, &c.Errored, &c.StartedAt, &c.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func (r *PostgresCampaignRepository) List(ctx context.Context, limit, offset int) ([]*Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM probe_campaigns
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var out []*Campaign
	for rows.Next() {
		c := &Campaign{}
		if err := rows.Scan(&c.ID, &c.Kind, &c.AgentID, &c.Requests, &c.Succeeded, &c.Failed, &c.SuccessRate,
			&c.MeanMs, &c.P95Ms, &c.P99Ms, &c.ItemsTotal, &c.TimedOut, &c.Errored, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
