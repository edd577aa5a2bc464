package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carbroker/pkg/config"
	"carbroker/pkg/database"
	"carbroker/pkg/domain"
)

// criteriaRow is the JSON shape of the criteria column.
type criteriaRow struct {
	PickupUnlocode  string    `json:"pickup_unlocode"`
	DropoffUnlocode string    `json:"dropoff_unlocode,omitempty"`
	PickupAt        time.Time `json:"pickup_at"`
	DropoffAt       time.Time `json:"dropoff_at"`
	DriverAge       int       `json:"driver_age,omitempty"`
	VehicleClass    string    `json:"vehicle_class,omitempty"`
}

func marshalCriteria(c domain.AvailabilityCriteria) ([]byte, error) {
	data, err := json.Marshal(criteriaRow{
		PickupUnlocode:  c.PickupUnlocode,
		DropoffUnlocode: c.DropoffUnlocode,
		PickupAt:        c.PickupAt,
		DropoffAt:       c.DropoffAt,
		DriverAge:       c.DriverAge,
		VehicleClass:    c.VehicleClass,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal criteria: %w", err)
	}
	return data, nil
}

func unmarshalCriteria(data []byte) (domain.AvailabilityCriteria, error) {
	var row criteriaRow
	if err := json.Unmarshal(data, &row); err != nil {
		return domain.AvailabilityCriteria{}, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	return domain.AvailabilityCriteria{
		PickupUnlocode:  row.PickupUnlocode,
		DropoffUnlocode: row.DropoffUnlocode,
		PickupAt:        row.PickupAt,
		DropoffAt:       row.DropoffAt,
		DriverAge:       row.DriverAge,
		VehicleClass:    row.VehicleClass,
	}, nil
}

// NewRepositories builds the repository set for the configured driver.
func NewRepositories(ctx context.Context, cfg *config.DatabaseConfig) (*Repositories, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryRepositories(), nil

	case "postgres", "postgresql":
		db, err := database.NewPostgresDB(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &Repositories{
			Companies:   NewPostgresCompanyReader(db),
			Agreements:  NewPostgresAgreementRepository(db),
			Coverage:    NewPostgresCoverageRepository(db),
			Jobs:        NewPostgresJobRepository(db),
			Echo:        NewPostgresEchoRepository(db),
			Bookings:    NewPostgresBookingRepository(db),
			Idempotency: NewPostgresIdempotencyRepository(db),
			Health:      NewPostgresHealthRepository(db),
			closer:      db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported repository driver: %s", cfg.Driver)
	}
}
