package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"carbroker/pkg/config"
	"carbroker/pkg/logger"
)

// Manager owns the gateway's gRPC clients to every backend service.
type Manager struct {
	mu sync.RWMutex

	identity   *IdentityClient
	brokering  *BrokeringClient
	analytics  *AnalyticsClient
	history    *HistoryClient
	backoffice *BackofficeClient
	audit      *AuditClient

	connections []*grpc.ClientConn
	config      *Config
}

// Config carries the backend endpoints.
type Config struct {
	Identity   config.ServiceEndpoint
	Brokering  config.ServiceEndpoint
	Analytics  config.ServiceEndpoint
	History    config.ServiceEndpoint
	Backoffice config.ServiceEndpoint
	Audit      config.ServiceEndpoint
}

// NewManager dials every backend.
func NewManager(ctx context.Context, cfg *Config) (*Manager, error) {
	m := &Manager{
		config:      cfg,
		connections: make([]*grpc.ClientConn, 0, 6),
	}

	var err error

	// Identity
	m.identity, err = NewIdentityClient(ctx, cfg.Identity)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to identity-svc: %w", err)
	}
	m.connections = append(m.connections, m.identity.conn)
	logger.Log.Info("Connected to identity-svc", "address", cfg.Identity.Address())

	// Brokering (the core)
	m.brokering, err = NewBrokeringClient(ctx, cfg.Brokering)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to brokering-svc: %w", err)
	}
	m.connections = append(m.connections, m.brokering.conn)
	logger.Log.Info("Connected to brokering-svc", "address", cfg.Brokering.Address())

	// Analytics
	m.analytics, err = NewAnalyticsClient(ctx, cfg.Analytics)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to analytics-svc: %w", err)
	}
	m.connections = append(m.connections, m.analytics.conn)
	logger.Log.Info("Connected to analytics-svc", "address", cfg.Analytics.Address())

	// History
	m.history, err = NewHistoryClient(ctx, cfg.History)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to history-svc: %w", err)
	}
	m.connections = append(m.connections, m.history.conn)
	logger.Log.Info("Connected to history-svc", "address", cfg.History.Address())

	// Backoffice
	m.backoffice, err = NewBackofficeClient(ctx, cfg.Backoffice)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to backoffice-svc: %w", err)
	}
	m.connections = append(m.connections, m.backoffice.conn)
	logger.Log.Info("Connected to backoffice-svc", "address", cfg.Backoffice.Address())

	// Audit
	m.audit, err = NewAuditClient(ctx, cfg.Audit)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to audit-svc: %w", err)
	}
	m.connections = append(m.connections, m.audit.conn)
	logger.Log.Info("Connected to audit-svc", "address", cfg.Audit.Address())

	return m, nil
}

// Getters
func (m *Manager) Identity() *IdentityClient     { return m.identity }
func (m *Manager) Brokering() *BrokeringClient   { return m.brokering }
func (m *Manager) Analytics() *AnalyticsClient   { return m.analytics }
func (m *Manager) History() *HistoryClient       { return m.history }
func (m *Manager) Backoffice() *BackofficeClient { return m.backoffice }
func (m *Manager) Audit() *AuditClient           { return m.audit }

// ServiceHealth is one backend's health snapshot.
type ServiceHealth struct {
	Name      string
	Address   string
	Status    string
	LatencyMs int64
	Error     string
	Version   string
}

// CheckHealth probes every backend concurrently.
func (m *Manager) CheckHealth(ctx context.Context) map[string]*ServiceHealth {
	results := make(map[string]*ServiceHealth)

	services := []struct {
		name    string
		conn    *grpc.ClientConn
		address string
	}{
		{"identity", m.identity.conn, m.config.Identity.Address()},
		{"brokering", m.brokering.conn, m.config.Brokering.Address()},
		{"analytics", m.analytics.conn, m.config.Analytics.Address()},
		{"history", m.history.conn, m.config.History.Address()},
		{"backoffice", m.backoffice.conn, m.config.Backoffice.Address()},
		{"audit", m.audit.conn, m.config.Audit.Address()},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, svc := range services {
		wg.Add(1)
		go func(name string, conn *grpc.ClientConn, address string) {
			defer wg.Done()

			health := &ServiceHealth{
				Name:    name,
				Address: address,
			}

			start := time.Now()
			client := grpc_health_v1.NewHealthClient(conn)

			healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			resp, err := client.Check(healthCtx, &grpc_health_v1.HealthCheckRequest{})
			health.LatencyMs = time.Since(start).Milliseconds()

			if err != nil {
				health.Status = "UNHEALTHY"
				health.Error = err.Error()
			} else if resp.Status == grpc_health_v1.HealthCheckResponse_SERVING {
				health.Status = "HEALTHY"
			} else {
				health.Status = resp.Status.String()
			}

			mu.Lock()
			results[name] = health
			mu.Unlock()
		}(svc.name, svc.conn, svc.address)
	}

	wg.Wait()
	return results
}

// Close closes every connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, conn := range m.connections {
		if conn != nil {
			if err := conn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}

// dialOptions returns the shared dial options.
func dialOptions(_ config.ServiceEndpoint) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(50*1024*1024),
			grpc.MaxCallSendMsgSize(50*1024*1024),
		),
	}
}

// dial connects to one backend.
func dial(_ context.Context, endpoint config.ServiceEndpoint) (*grpc.ClientConn, error) {
	return grpc.NewClient(endpoint.Address(), dialOptions(endpoint)...)
}
