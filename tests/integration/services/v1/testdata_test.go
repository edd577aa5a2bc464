package v1_test

import (
	"context"
	"testing"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	commonv1 "carbroker/gen/go/carbroker/common/v1"
	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	"carbroker/tests/integration/testutil"
)

// brokeredPair is one agent + one active source bound by an ACTIVE
// agreement, the fixture most scenarios start from.
type brokeredPair struct {
	AgentID      string
	SourceID     string
	AgreementID  string
	AgreementRef string
}

// registerActiveCompany registers and activates one company.
func registerActiveCompany(t *testing.T, identity identityv1.IdentityServiceClient, companyType, adapterKind string) string {
	t.Helper()
	ctx, cancel := testutil.Context(t)
	defer cancel()

	reg, err := identity.Register(ctx, &identityv1.RegisterRequest{
		Name:        "it-" + testutil.RandomString(6),
		Email:       testutil.UniqueKey("it") + "@example.com",
		Password:    "integrationPass1",
		Type:        companyType,
		AdapterKind: adapterKind,
	})
	if err != nil {
		t.Fatalf("register %s: %v", companyType, err)
	}
	if !reg.Success {
		t.Fatalf("register %s rejected: %s", companyType, reg.ErrorMessage)
	}

	if _, err := identity.SetCompanyStatus(ctx, &identityv1.SetCompanyStatusRequest{
		CompanyId: reg.Company.CompanyId,
		Status:    "ACTIVE",
	}); err != nil {
		t.Fatalf("activate %s: %v", companyType, err)
	}
	return reg.Company.CompanyId
}

// setupBrokeredPair builds the agent/source/agreement fixture.
func setupBrokeredPair(t *testing.T, identity identityv1.IdentityServiceClient, brokering brokeringv1.BrokeringServiceClient) brokeredPair {
	t.Helper()
	ctx, cancel := testutil.Context(t)
	defer cancel()

	pair := brokeredPair{
		AgentID:      registerActiveCompany(t, identity, "AGENT", ""),
		SourceID:     registerActiveCompany(t, identity, "SOURCE", "mock"),
		AgreementRef: testutil.UniqueKey("AGR"),
	}

	a, err := brokering.CreateDraftAgreement(ctx, &brokeringv1.CreateDraftAgreementRequest{
		AgentId:      pair.AgentID,
		SourceId:     pair.SourceID,
		AgreementRef: pair.AgreementRef,
	})
	if err != nil {
		t.Fatalf("create draft agreement: %v", err)
	}
	pair.AgreementID = a.Id

	for _, step := range []func(context.Context, *brokeringv1.AgreementIdRequest) (*commonv1.Agreement, error){
		func(ctx context.Context, req *brokeringv1.AgreementIdRequest) (*commonv1.Agreement, error) {
			return brokering.OfferAgreement(ctx, req)
		},
		func(ctx context.Context, req *brokeringv1.AgreementIdRequest) (*commonv1.Agreement, error) {
			return brokering.AcceptAgreement(ctx, req)
		},
	} {
		if _, err := step(ctx, &brokeringv1.AgreementIdRequest{Id: a.Id}); err != nil {
			t.Fatalf("agreement transition: %v", err)
		}
	}
	if _, err := brokering.SetAgreementStatus(ctx, &brokeringv1.SetAgreementStatusRequest{Id: a.Id, Status: "ACTIVE"}); err != nil {
		t.Fatalf("activate agreement: %v", err)
	}

	// The mock source covers nothing until its locations are synced.
	if _, err := brokering.SyncSourceCoverage(ctx, &brokeringv1.SyncSourceCoverageRequest{SourceId: pair.SourceID}); err != nil {
		t.Logf("coverage sync failed (mock may cover nothing): %v", err)
	}

	return pair
}

// searchCriteria is the canonical test route.
func searchCriteria() *commonv1.SearchCriteria {
	return &commonv1.SearchCriteria{
		PickupUnlocode:  "PKKHI",
		DropoffUnlocode: "PKLHE",
		PickupAt:        "2026-09-01T10:00:00Z",
		DropoffAt:       "2026-09-05T10:00:00Z",
		DriverAge:       30,
	}
}
