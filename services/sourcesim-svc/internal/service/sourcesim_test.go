package service

import (
	"context"
	"fmt"
	"testing"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	commonv1 "carbroker/gen/go/carbroker/common/v1"
	sourcesimv1 "carbroker/gen/go/carbroker/sourcesim/v1"
	"carbroker/services/sourcesim-svc/internal/probe"
	"carbroker/services/sourcesim-svc/internal/repository"
	"carbroker/services/sourcesim-svc/internal/source"
)

type stubBroker struct{ calls int }

func (s *stubBroker) SubmitEcho(context.Context, string, string, string, map[string]string) (*brokeringv1.SubmitEchoResponse, error) {
	s.calls++
	return &brokeringv1.SubmitEchoResponse{RequestId: fmt.Sprintf("r-%d", s.calls)}, nil
}

func (s *stubBroker) GetEchoResults(context.Context, string, int64, int32) (*brokeringv1.GetEchoResultsResponse, error) {
	return &brokeringv1.GetEchoResultsResponse{Status: "COMPLETE", LastSeq: 1,
		NewItems: []*brokeringv1.EchoItem{{Seq: 1, SourceId: "s1", Status: "OK"}}}, nil
}

func (s *stubBroker) SubmitAvailability(context.Context, string, *commonv1.SearchCriteria, []string) (*brokeringv1.SubmitAvailabilityResponse, error) {
	return &brokeringv1.SubmitAvailabilityResponse{RequestId: "a-1"}, nil
}

func (s *stubBroker) DrainAvailability(context.Context, string, int32) ([]*commonv1.ResultItem, error) {
	return nil, nil
}

func newTestService() *SourcesimService {
	runner := probe.NewRunner(&stubBroker{})
	repo := repository.NewMemoryCampaignRepository()
	sim := source.New("sim-1", []string{"PKKHI"})
	return NewSourcesimService(runner, repo, sim)
}

func TestRunCampaignStoresResult(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	resp, err := s.RunCampaign(ctx, &sourcesimv1.RunCampaignRequest{
		Kind:     "echo",
		AgentId:  "agent-1",
		Requests: 3,
	})
	if err != nil {
		t.Fatalf("RunCampaign: %v", err)
	}
	if resp.Campaign.Requests != 3 || resp.Campaign.Succeeded != 3 {
		t.Errorf("campaign = %+v", resp.Campaign)
	}

	got, err := s.GetCampaign(ctx, &sourcesimv1.GetCampaignRequest{CampaignId: resp.Campaign.Id})
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.Campaign.Id != resp.Campaign.Id {
		t.Error("stored campaign id mismatch")
	}

	list, err := s.ListCampaigns(ctx, &sourcesimv1.ListCampaignsRequest{})
	if err != nil || len(list.Campaigns) != 1 {
		t.Errorf("ListCampaigns = (%d, %v)", len(list.Campaigns), err)
	}
}

func TestRunCampaign_RequiresAgent(t *testing.T) {
	s := newTestService()
	if _, err := s.RunCampaign(context.Background(), &sourcesimv1.RunCampaignRequest{Kind: "echo"}); err == nil {
		t.Error("missing agent_id must be rejected")
	}
}

func TestGetCampaign_NotFound(t *testing.T) {
	s := newTestService()
	if _, err := s.GetCampaign(context.Background(), &sourcesimv1.GetCampaignRequest{CampaignId: "missing"}); err == nil {
		t.Error("unknown campaign must be NOT_FOUND")
	}
}

func TestSetBehavior(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	if _, err := s.SetBehavior(ctx, &sourcesimv1.SetBehaviorRequest{BaseLatencyMs: 100, FailureRate: 0.25}); err != nil {
		t.Fatalf("SetBehavior: %v", err)
	}
	if got := s.src.Behavior(); got.FailureRate != 0.25 {
		t.Errorf("behavior = %+v", got)
	}

	if _, err := s.SetBehavior(ctx, &sourcesimv1.SetBehaviorRequest{FailureRate: 1.5}); err == nil {
		t.Error("out-of-range failure rate must be rejected")
	}
}
