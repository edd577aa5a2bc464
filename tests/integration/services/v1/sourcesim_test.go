package v1_test

import (
	"testing"

	sourcesimv1 "carbroker/gen/go/carbroker/sourcesim/v1"
	"carbroker/tests/integration/testutil"
)

func TestSourcesim_EchoCampaign(t *testing.T) {
	identity := SetupIdentityClient(t)
	brokering := SetupBrokeringClient(t)
	sourcesim := SetupSourcesimClient(t)
	pair := setupBrokeredPair(t, identity, brokering)

	ctx, cancel := testutil.Context(t)
	defer cancel()

	resp, err := sourcesim.RunCampaign(ctx, &sourcesimv1.RunCampaignRequest{
		Kind:     "echo",
		AgentId:  pair.AgentID,
		Requests: 3,
	})
	if err != nil {
		t.Fatalf("RunCampaign: %v", err)
	}
	if resp.Campaign.Requests != 3 {
		t.Errorf("campaign = %+v", resp.Campaign)
	}

	got, err := sourcesim.GetCampaign(ctx, &sourcesimv1.GetCampaignRequest{CampaignId: resp.Campaign.Id})
	if err != nil || got.Campaign.Id != resp.Campaign.Id {
		t.Errorf("GetCampaign = (%+v, %v)", got, err)
	}
}

func TestSourcesim_BehaviorInjection(t *testing.T) {
	sourcesim := SetupSourcesimClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	if _, err := sourcesim.SetBehavior(ctx, &sourcesimv1.SetBehaviorRequest{
		BaseLatencyMs: 50,
		FailureRate:   0.1,
	}); err != nil {
		t.Fatalf("SetBehavior: %v", err)
	}

	// Reset so later suites see a clean supplier
	if _, err := sourcesim.SetBehavior(ctx, &sourcesimv1.SetBehaviorRequest{}); err != nil {
		t.Fatalf("reset behavior: %v", err)
	}
}
