package v1_test

import (
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	analyticsv1 "carbroker/gen/go/carbroker/analytics/v1"
	auditv1 "carbroker/gen/go/carbroker/audit/v1"
	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	historyv1 "carbroker/gen/go/carbroker/history/v1"
	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	sourcesimv1 "carbroker/gen/go/carbroker/sourcesim/v1"
	"carbroker/tests/integration/testutil"
)

// Service addresses (environment variables)
const (
	EnvBrokeringAddr  = "BROKERING_SVC_ADDR"
	EnvIdentityAddr   = "IDENTITY_SVC_ADDR"
	EnvSourcesimAddr  = "SOURCESIM_SVC_ADDR"
	EnvAnalyticsAddr  = "ANALYTICS_SVC_ADDR"
	EnvAuditAddr      = "AUDIT_SVC_ADDR"
	EnvBackofficeAddr = "BACKOFFICE_SVC_ADDR"
	EnvHistoryAddr    = "HISTORY_SVC_ADDR"

	DefaultBrokeringAddr  = "localhost:50052"
	DefaultIdentityAddr   = "localhost:50053"
	DefaultSourcesimAddr  = "localhost:50054"
	DefaultAnalyticsAddr  = "localhost:50055"
	DefaultAuditAddr      = "localhost:50056"
	DefaultBackofficeAddr = "localhost:50057"
	DefaultHistoryAddr    = "localhost:50058"
)

// dialService creates a gRPC connection to a service
func dialService(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", addr, err)
	}
	return conn
}

// SetupBrokeringClient creates the brokering client
func SetupBrokeringClient(t *testing.T) brokeringv1.BrokeringServiceClient {
	t.Helper()
	addr := testutil.RequireService(t, EnvBrokeringAddr, DefaultBrokeringAddr)
	conn := dialService(t, addr)
	t.Cleanup(func() { conn.Close() })
	return brokeringv1.NewBrokeringServiceClient(conn)
}

// SetupIdentityClient creates the identity client
func SetupIdentityClient(t *testing.T) identityv1.IdentityServiceClient {
	t.Helper()
	addr := testutil.RequireService(t, EnvIdentityAddr, DefaultIdentityAddr)
	conn := dialService(t, addr)
	t.Cleanup(func() { conn.Close() })
	return identityv1.NewIdentityServiceClient(conn)
}

// SetupSourcesimClient creates the sourcesim client
func SetupSourcesimClient(t *testing.T) sourcesimv1.SourcesimServiceClient {
	t.Helper()
	addr := testutil.RequireService(t, EnvSourcesimAddr, DefaultSourcesimAddr)
	conn := dialService(t, addr)
	t.Cleanup(func() { conn.Close() })
	return sourcesimv1.NewSourcesimServiceClient(conn)
}

// SetupAnalyticsClient creates the analytics client
func SetupAnalyticsClient(t *testing.T) analyticsv1.AnalyticsServiceClient {
	t.Helper()
	addr := testutil.RequireService(t, EnvAnalyticsAddr, DefaultAnalyticsAddr)
	conn := dialService(t, addr)
	t.Cleanup(func() { conn.Close() })
	return analyticsv1.NewAnalyticsServiceClient(conn)
}

// SetupAuditClient creates the audit client
func SetupAuditClient(t *testing.T) auditv1.AuditServiceClient {
	t.Helper()
	addr := testutil.RequireService(t, EnvAuditAddr, DefaultAuditAddr)
	conn := dialService(t, addr)
	t.Cleanup(func() { conn.Close() })
	return auditv1.NewAuditServiceClient(conn)
}

// SetupBackofficeClient creates the backoffice client
func SetupBackofficeClient(t *testing.T) backofficev1.BackofficeServiceClient {
	t.Helper()
	addr := testutil.RequireService(t, EnvBackofficeAddr, DefaultBackofficeAddr)
	conn := dialService(t, addr)
	t.Cleanup(func() { conn.Close() })
	return backofficev1.NewBackofficeServiceClient(conn)
}

// SetupHistoryClient creates the history client
func SetupHistoryClient(t *testing.T) historyv1.HistoryServiceClient {
	t.Helper()
	addr := testutil.RequireService(t, EnvHistoryAddr, DefaultHistoryAddr)
	conn := dialService(t, addr)
	t.Cleanup(func() { conn.Close() })
	return historyv1.NewHistoryServiceClient(conn)
}
