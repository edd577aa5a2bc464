package adapter

import (
	"context"
	"sync"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
)

// CompanyGetter resolves a source company's adapter attributes.
type CompanyGetter interface {
	GetCompany(ctx context.Context, id string) (*domain.Company, error)
}

// Registry constructs and memoizes one SourceAdapter per source, discovered
// from the company's adapterKind and grpcEndpoint attributes.
type Registry struct {
	companies CompanyGetter

	mu       sync.Mutex
	adapters map[string]SourceAdapter

	// mockFactory lets tests and memory mode install configured mocks; in
	// production it builds a default mock for adapterKind=mock sources.
	mockFactory func(sourceID string) SourceAdapter
}

// NewRegistry creates an adapter registry.
func NewRegistry(companies CompanyGetter) *Registry {
	return &Registry{
		companies: companies,
		adapters:  make(map[string]SourceAdapter),
		mockFactory: func(sourceID string) SourceAdapter {
			return NewMockAdapter(sourceID, nil)
		},
	}
}

// SetMockFactory overrides how mock adapters are built.
func (r *Registry) SetMockFactory(f func(sourceID string) SourceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mockFactory = f
}

// Install registers a ready adapter for a source, replacing any cached one.
func (r *Registry) Install(sourceID string, a SourceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.adapters[sourceID]; ok {
		_ = old.Close() //nolint:errcheck // superseded client, close is best effort
	}
	r.adapters[sourceID] = a
}

// For returns the adapter for a source, constructing it on first use.
func (r *Registry) For(ctx context.Context, sourceID string) (SourceAdapter, error) {
	r.mu.Lock()
	if a, ok := r.adapters[sourceID]; ok {
		r.mu.Unlock()
		return a, nil
	}
	r.mu.Unlock()

	company, err := r.companies.GetCompany(ctx, sourceID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeNotFound, "unknown source company")
	}
	if company.Type != domain.CompanyTypeSource {
		return nil, apperror.New(apperror.CodeInvalidParam, "company is not a source")
	}

	var built SourceAdapter
	switch company.AdapterKind {
	case domain.AdapterKindGRPC:
		built, err = NewGRPCAdapter(ctx, sourceID, company.GRPCEndpoint)
		if err != nil {
			return nil, err
		}
	case domain.AdapterKindMock, "":
		r.mu.Lock()
		factory := r.mockFactory
		r.mu.Unlock()
		built = factory(sourceID)
	default:
		return nil, apperror.New(apperror.CodeInvalidParam, "unsupported adapter kind: "+string(company.AdapterKind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent caller may have built one meanwhile; keep the first.
	if a, ok := r.adapters[sourceID]; ok {
		_ = built.Close() //nolint:errcheck // losing builder discards its client
		return a, nil
	}
	r.adapters[sourceID] = built
	return built, nil
}

// Close shuts down every cached adapter.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.adapters {
		if err := a.Close(); err != nil {
			logger.Log.Warn("Failed to close source adapter", "source_id", id, "error", err)
		}
		delete(r.adapters, id)
	}
}
