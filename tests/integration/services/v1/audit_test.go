package v1_test

import (
	"testing"

	"google.golang.org/protobuf/types/known/timestamppb"

	auditv1 "carbroker/gen/go/carbroker/audit/v1"
	"carbroker/tests/integration/testutil"
)

func TestAudit_LogAndQuery(t *testing.T) {
	audit := SetupAuditClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	companyID := testutil.UniqueKey("agent")
	entry := &auditv1.AuditEntry{
		Id:           testutil.UniqueKey("audit"),
		Timestamp:    timestamppb.Now(),
		Service:      "integration-suite",
		Method:       "Test.LogAndQuery",
		Action:       auditv1.AuditAction_AUDIT_ACTION_DISPATCH,
		Outcome:      auditv1.AuditOutcome_AUDIT_OUTCOME_SUCCESS,
		Direction:    auditv1.AuditDirection_AUDIT_DIRECTION_IN,
		UserId:       companyID,
		SourceId:     "src-it",
		AgreementRef: "AGR-IT",
	}

	logResp, err := audit.LogEvent(ctx, &auditv1.LogEventRequest{Entry: entry})
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if !logResp.Success {
		t.Fatal("LogEvent reported failure")
	}

	query, err := audit.QueryEvents(ctx, &auditv1.QueryEventsRequest{CompanyId: companyID})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if query.TotalCount < 1 {
		t.Fatalf("entry not found: %+v", query)
	}
	got := query.Entries[0]
	if got.AgreementRef != "AGR-IT" || got.SourceId != "src-it" {
		t.Errorf("entry round trip = %+v", got)
	}

	activity, err := audit.GetCompanyActivity(ctx, &auditv1.GetCompanyActivityRequest{CompanyId: companyID})
	if err != nil || len(activity.Entries) < 1 {
		t.Errorf("activity = (%d, %v)", len(activity.Entries), err)
	}
}

func TestAudit_BatchCountsFailures(t *testing.T) {
	audit := SetupAuditClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	resp, err := audit.LogEventBatch(ctx, &auditv1.LogEventBatchRequest{
		Entries: []*auditv1.AuditEntry{
			{Id: testutil.UniqueKey("a"), Timestamp: timestamppb.Now(), Service: "it", Method: "m",
				Action: auditv1.AuditAction_AUDIT_ACTION_BOOK, Outcome: auditv1.AuditOutcome_AUDIT_OUTCOME_SUCCESS},
			{Id: testutil.UniqueKey("b"), Timestamp: timestamppb.Now(), Service: "it", Method: "m",
				Action: auditv1.AuditAction_AUDIT_ACTION_ECHO, Outcome: auditv1.AuditOutcome_AUDIT_OUTCOME_FAILURE},
		},
	})
	if err != nil {
		t.Fatalf("LogEventBatch: %v", err)
	}
	if resp.LoggedCount != 2 {
		t.Errorf("logged = %d, want 2", resp.LoggedCount)
	}
}
