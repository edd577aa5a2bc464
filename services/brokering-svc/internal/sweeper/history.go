package sweeper

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"

	historyv1 "carbroker/gen/go/carbroker/history/v1"
	"carbroker/pkg/client"
	"carbroker/pkg/config"
	"carbroker/pkg/domain"
)

// HistoryArchiver ships rows leaving the live tables to history-svc.
type HistoryArchiver struct {
	conn   *grpc.ClientConn
	client historyv1.HistoryServiceClient
}

// NewHistoryArchiver dials history-svc.
func NewHistoryArchiver(ctx context.Context, endpoint config.ServiceEndpoint) (*HistoryArchiver, error) {
	conn, err := client.NewGRPCClient(ctx, client.ClientConfig{
		Address:      endpoint.Address(),
		Timeout:      endpoint.Timeout,
		MaxRetries:   endpoint.MaxRetries,
		RetryBackoff: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return &HistoryArchiver{
		conn:   conn,
		client: historyv1.NewHistoryServiceClient(conn),
	}, nil
}

// Close closes the connection.
func (a *HistoryArchiver) Close() error {
	return a.conn.Close()
}

func (a *HistoryArchiver) ArchiveAvailabilityJob(ctx context.Context, job *domain.AvailabilityJob, resultCount int) error {
	criteria, err := json.Marshal(map[string]any{
		"pickup_unlocode":  job.Criteria.PickupUnlocode,
		"dropoff_unlocode": job.Criteria.DropoffUnlocode,
		"pickup_at":        job.Criteria.PickupAt,
		"dropoff_at":       job.Criteria.DropoffAt,
	})
	if err != nil {
		return err
	}

	p := &historyv1.ArchivedJob{
		Id:              job.ID,
		AgentId:         job.AgentID,
		CriteriaJson:    string(criteria),
		ResultCount:     int32(resultCount),
		ExpectedSources: job.ExpectedSources,
		CreatedAt:       timestamppb.New(job.CreatedAt),
	}
	if job.CompletedAt != nil {
		p.CompletedAt = timestamppb.New(*job.CompletedAt)
	}

	_, err = a.client.ArchiveJob(ctx, &historyv1.ArchiveJobRequest{Job: p})
	return err
}

func (a *HistoryArchiver) ArchiveEchoJob(ctx context.Context, job *domain.EchoJob, itemCount int) error {
	p := &historyv1.ArchivedEchoJob{
		Id:              job.ID,
		RequestedBy:     job.RequestedBy,
		ItemCount:       int32(itemCount),
		ExpectedSources: job.ExpectedSources,
		CreatedAt:       timestamppb.New(job.CreatedAt),
	}
	if job.CompletedAt != nil {
		p.CompletedAt = timestamppb.New(*job.CompletedAt)
	}

	_, err := a.client.ArchiveEchoJob(ctx, &historyv1.ArchiveEchoJobRequest{Job: p})
	return err
}

func (a *HistoryArchiver) ArchiveBooking(ctx context.Context, b *domain.Booking, snapshot []byte) error {
	_, err := a.client.ArchiveBooking(ctx, &historyv1.ArchiveBookingRequest{
		Booking: &historyv1.ArchivedBooking{
			Id:           b.ID,
			AgentId:      b.AgentID,
			AgreementId:  b.AgreementID,
			SourceId:     b.SourceID,
			SourceRef:    b.SourceRef,
			Status:       string(b.Status),
			SnapshotJson: string(snapshot),
			CreatedAt:    timestamppb.New(b.CreatedAt),
			UpdatedAt:    timestamppb.New(b.UpdatedAt),
		},
	})
	return err
}
