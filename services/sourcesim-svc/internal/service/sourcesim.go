// Package service exposes the sourcesim control surface: run probe
// campaigns against the brokering edge and inspect their results, plus
// runtime control of the synthetic supplier's injected behavior.
package service

import (
	"context"
	"errors"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	sourcesimv1 "carbroker/gen/go/carbroker/sourcesim/v1"
	pkgerrors "carbroker/pkg/apperror"
	"carbroker/pkg/telemetry"
	"carbroker/services/sourcesim-svc/internal/probe"
	"carbroker/services/sourcesim-svc/internal/repository"
	"carbroker/services/sourcesim-svc/internal/source"
)

// SourcesimService implements sourcesimv1.SourcesimServiceServer.
type SourcesimService struct {
	sourcesimv1.UnimplementedSourcesimServiceServer
	runner *probe.Runner
	repo   repository.CampaignRepository
	src    *source.SimSource
}

// NewSourcesimService wires the service.
func NewSourcesimService(runner *probe.Runner, repo repository.CampaignRepository, src *source.SimSource) *SourcesimService {
	return &SourcesimService{
		runner: runner,
		repo:   repo,
		src:    src,
	}
}

// RunCampaign executes one probe campaign synchronously and stores its
// aggregate result.
func (s *SourcesimService) RunCampaign(ctx context.Context, req *sourcesimv1.RunCampaignRequest) (*sourcesimv1.RunCampaignResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "SourcesimService.RunCampaign")
	defer span.End()

	if req.AgentId == "" {
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, "agent_id is required", "agent_id"))
	}

	cfg := probe.Config{
		Kind:         probe.Kind(req.Kind),
		AgentID:      req.AgentId,
		AgreementRef: req.AgreementRef,
		Requests:     int(req.Requests),
		Concurrency:  int(req.Concurrency),
		PollWaitMs:   req.PollWaitMs,
		Timeout:      time.Duration(req.TimeoutMs) * time.Millisecond,
	}
	if cfg.Kind == probe.KindAvailability {
		cfg.PickupUnlocode = req.PickupUnlocode
		cfg.DropoffUnlocode = req.DropoffUnlocode
		cfg.PickupAt = time.Now().Add(24 * time.Hour)
		cfg.DropoffAt = time.Now().Add(72 * time.Hour)
	}

	result, err := s.runner.Run(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "campaign failed"))
	}

	row := &repository.Campaign{
		ID:          result.ID,
		Kind:        string(result.Kind),
		AgentID:     req.AgentId,
		Requests:    result.Requests,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		SuccessRate: result.SuccessRate,
		MeanMs:      result.Latency.Mean,
		P95Ms:       result.Latency.P95,
		P99Ms:       result.Latency.P99,
		ItemsTotal:  result.ItemsTotal,
		TimedOut:    result.TimedOut,
		Errored:     result.Errored,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to save campaign"))
	}

	return &sourcesimv1.RunCampaignResponse{Campaign: toProto(row)}, nil
}

// GetCampaign returns one stored campaign.
func (s *SourcesimService) GetCampaign(ctx context.Context, req *sourcesimv1.GetCampaignRequest) (*sourcesimv1.GetCampaignResponse, error) {
	c, err := s.repo.Get(ctx, req.CampaignId)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found"))
		}
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to get campaign"))
	}
	return &sourcesimv1.GetCampaignResponse{Campaign: toProto(c)}, nil
}

// ListCampaigns lists stored campaigns, newest first.
func (s *SourcesimService) ListCampaigns(ctx context.Context, req *sourcesimv1.ListCampaignsRequest) (*sourcesimv1.ListCampaignsResponse, error) {
	campaigns, err := s.repo.List(ctx, int(req.Limit), int(req.Offset))
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to list campaigns"))
	}

	out := &sourcesimv1.ListCampaignsResponse{}
	for _, c := range campaigns {
		out.Campaigns = append(out.Campaigns, toProto(c))
	}
	return out, nil
}

// SetBehavior changes the synthetic supplier's injected latency/failure at
// runtime, used by chaos runs to trip the health monitor.
func (s *SourcesimService) SetBehavior(ctx context.Context, req *sourcesimv1.SetBehaviorRequest) (*sourcesimv1.SetBehaviorResponse, error) {
	_, span := telemetry.StartSpan(ctx, "SourcesimService.SetBehavior")
	defer span.End()

	if req.FailureRate < 0 || req.FailureRate >= 1 {
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, "failure_rate must be in [0, 1)", "failure_rate"))
	}

	s.src.SetBehavior(source.Behavior{
		BaseLatency:   time.Duration(req.BaseLatencyMs) * time.Millisecond,
		LatencyJitter: time.Duration(req.LatencyJitterMs) * time.Millisecond,
		FailureRate:   req.FailureRate,
	})
	return &sourcesimv1.SetBehaviorResponse{}, nil
}

func toProto(c *repository.Campaign) *sourcesimv1.Campaign {
	return &sourcesimv1.Campaign{
		Id:          c.ID,
		Kind:        c.Kind,
		AgentId:     c.AgentID,
		Requests:    int32(c.Requests),
		Succeeded:   int32(c.Succeeded),
		Failed:      int32(c.Failed),
		SuccessRate: c.SuccessRate,
		MeanMs:      c.MeanMs,
		P95Ms:       c.P95Ms,
		P99Ms:       c.P99Ms,
		ItemsTotal:  int32(c.ItemsTotal),
		TimedOut:    int32(c.TimedOut),
		Errored:     int32(c.Errored),
		StartedAt:   timestamppb.New(c.StartedAt),
		FinishedAt:  timestamppb.New(c.FinishedAt),
	}
}
