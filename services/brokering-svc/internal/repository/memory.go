package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"carbroker/pkg/domain"
)

// MemoryCompanyReader is a seedable in-memory CompanyReader, used in tests
// and in memory mode where identity-svc shares the process.
type MemoryCompanyReader struct {
	mu        sync.RWMutex
	companies map[string]*domain.Company
}

// NewMemoryCompanyReader creates an empty reader.
func NewMemoryCompanyReader() *MemoryCompanyReader {
	return &MemoryCompanyReader{companies: make(map[string]*domain.Company)}
}

// Seed inserts or replaces a company row.
func (r *MemoryCompanyReader) Seed(c *domain.Company) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *c
	r.companies[c.ID] = &stored
}

func (r *MemoryCompanyReader) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *MemoryCompanyReader) ListSources(_ context.Context) ([]*domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Company
	for _, c := range r.companies {
		if c.Type == domain.CompanyTypeSource {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryAgreementRepository is the in-memory AgreementRepository.
type MemoryAgreementRepository struct {
	mu         sync.RWMutex
	agreements map[string]*domain.Agreement
	byNatural  map[string]string // sourceID+"\x1f"+ref -> id
}

// NewMemoryAgreementRepository creates an empty repository.
func NewMemoryAgreementRepository() *MemoryAgreementRepository {
	return &MemoryAgreementRepository{
		agreements: make(map[string]*domain.Agreement),
		byNatural:  make(map[string]string),
	}
}

func naturalKey(sourceID, ref string) string { return sourceID + "\x1f" + ref }

func (r *MemoryAgreementRepository) Create(_ context.Context, a *domain.Agreement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byNatural[naturalKey(a.SourceID, a.AgreementRef)]; exists {
		return ErrDuplicate
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	stored := *a
	r.agreements[a.ID] = &stored
	r.byNatural[naturalKey(a.SourceID, a.AgreementRef)] = a.ID
	return nil
}

func (r *MemoryAgreementRepository) Get(_ context.Context, id string) (*domain.Agreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agreements[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r *MemoryAgreementRepository) GetByNaturalKey(_ context.Context, sourceID, ref string) (*domain.Agreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNatural[naturalKey(sourceID, ref)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r.agreements[id]
	return &out, nil
}

func (r *MemoryAgreementRepository) UpdateStatus(_ context.Context, id string, expected, next domain.AgreementStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agreements[id]
	if !ok || a.Status != expected {
		return ErrNotFound
	}
	a.Status = next
	a.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryAgreementRepository) ListByAgent(_ context.Context, agentID string, status *domain.AgreementStatus) ([]*domain.Agreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Agreement
	for _, a := range r.agreements {
		if a.AgentID != agentID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		aa := *a
		out = append(out, &aa)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryAgreementRepository) ListBySource(_ context.Context, sourceID string, status *domain.AgreementStatus) ([]*domain.Agreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Agreement
	for _, a := range r.agreements {
		if a.SourceID != sourceID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		aa := *a
		out = append(out, &aa)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryAgreementRepository) ResolveActive(_ context.Context, agentID string, refs []string, now time.Time) ([]domain.ResolvedAgreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var wanted map[string]struct{}
	if len(refs) > 0 {
		wanted = make(map[string]struct{}, len(refs))
		for _, ref := range refs {
			wanted[ref] = struct{}{}
		}
	}

	var out []domain.ResolvedAgreement
	for _, a := range r.agreements {
		if a.AgentID != agentID || !a.IsActiveNow(now) {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[a.AgreementRef]; !ok {
				continue
			}
		}
		out = append(out, domain.ResolvedAgreement{
			ID:           a.ID,
			AgreementRef: a.AgreementRef,
			SourceID:     a.SourceID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgreementRef < out[j].AgreementRef })
	return out, nil
}

// MemoryCoverageRepository is the in-memory CoverageRepository. The catalog
// is seedable; unknown codes fail KnownLocodes lookups the same way the
// Postgres variant does.
type MemoryCoverageRepository struct {
	mu        sync.RWMutex
	catalog   map[string]struct{}
	base      map[string]map[string]struct{}
	overrides map[string]map[string]domain.OverrideDecision
}

// NewMemoryCoverageRepository creates an empty repository.
func NewMemoryCoverageRepository() *MemoryCoverageRepository {
	return &MemoryCoverageRepository{
		catalog:   make(map[string]struct{}),
		base:      make(map[string]map[string]struct{}),
		overrides: make(map[string]map[string]domain.OverrideDecision),
	}
}

// SeedCatalog registers unlocodes as known.
func (r *MemoryCoverageRepository) SeedCatalog(unlocodes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range unlocodes {
		r.catalog[u] = struct{}{}
	}
}

func (r *MemoryCoverageRepository) BaseCoverage(_ context.Context, sourceID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.base[sourceID]))
	for u := range r.base[sourceID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryCoverageRepository) ReplaceBaseCoverage(_ context.Context, sourceID string, unlocodes []string) (domain.CoverageSyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := make(map[string]struct{}, len(unlocodes))
	for _, u := range unlocodes {
		fresh[u] = struct{}{}
	}

	existing := r.base[sourceID]
	result := domain.CoverageSyncResult{Total: len(fresh)}
	for u := range fresh {
		if _, ok := existing[u]; !ok {
			result.Added++
		}
	}
	for u := range existing {
		if _, ok := fresh[u]; !ok {
			result.Removed++
		}
	}
	r.base[sourceID] = fresh
	return result, nil
}

func (r *MemoryCoverageRepository) Overrides(_ context.Context, agreementID string) (map[string]domain.OverrideDecision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.OverrideDecision, len(r.overrides[agreementID]))
	for u, d := range r.overrides[agreementID] {
		out[u] = d
	}
	return out, nil
}

func (r *MemoryCoverageRepository) UpsertOverride(_ context.Context, agreementID, unlocode string, decision domain.OverrideDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.catalog[unlocode]; !known {
		return ErrUnknownLocode
	}
	m, ok := r.overrides[agreementID]
	if !ok {
		m = make(map[string]domain.OverrideDecision)
		r.overrides[agreementID] = m
	}
	m[unlocode] = decision
	return nil
}

func (r *MemoryCoverageRepository) RemoveOverride(_ context.Context, agreementID, unlocode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.overrides[agreementID]; ok {
		delete(m, unlocode)
	}
	return nil
}

func (r *MemoryCoverageRepository) KnownLocodes(_ context.Context, unlocodes []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(unlocodes))
	for _, u := range unlocodes {
		_, ok := r.catalog[u]
		out[u] = ok
	}
	return out, nil
}

// MemoryJobRepository is the in-memory JobRepository.
type MemoryJobRepository struct {
	mu      sync.RWMutex
	jobs    map[string]*domain.AvailabilityJob
	results map[string][]*domain.AvailabilityResult
}

// NewMemoryJobRepository creates an empty repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:    make(map[string]*domain.AvailabilityJob),
		results: make(map[string][]*domain.AvailabilityResult),
	}
}

func (r *MemoryJobRepository) CreateJob(_ context.Context, job *domain.AvailabilityJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.Status = domain.JobStatusInProgress
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *MemoryJobRepository) GetJob(_ context.Context, id string) (*domain.AvailabilityJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *job
	return &out, nil
}

func (r *MemoryJobRepository) SetExpectedSources(_ context.Context, id string, sourceIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.ExpectedSources = append([]string(nil), sourceIDs...)
	return nil
}

func (r *MemoryJobRepository) AppendResult(_ context.Context, result *domain.AvailabilityResult) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[result.JobID]
	if !ok {
		return 0, ErrNotFound
	}
	if job.Status == domain.JobStatusComplete {
		return 0, ErrJobComplete
	}
	seq := int64(len(r.results[result.JobID])) + 1
	stored := *result
	stored.ID = uuid.New().String()
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = time.Now()
	}
	r.results[result.JobID] = append(r.results[result.JobID], &stored)
	return seq, nil
}

func (r *MemoryJobRepository) CompleteJob(_ context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status == domain.JobStatusComplete {
		return false, nil
	}
	job.Status = domain.JobStatusComplete
	job.CompletedAt = &now
	return true, nil
}

func (r *MemoryJobRepository) ResultsSince(_ context.Context, jobID string, sinceSeq int64) ([]*domain.AvailabilityResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.results[jobID]
	if sinceSeq >= int64(len(all)) {
		return nil, nil
	}
	out := make([]*domain.AvailabilityResult, 0, int64(len(all))-sinceSeq)
	for i := sinceSeq; i < int64(len(all)); i++ {
		rr := *all[i]
		out = append(out, &rr)
	}
	return out, nil
}

func (r *MemoryJobRepository) LastSeq(_ context.Context, jobID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.results[jobID])), nil
}

func (r *MemoryJobRepository) ExpiredJobs(_ context.Context, cutoff time.Time, limit int) ([]*domain.AvailabilityJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.AvailabilityJob
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusComplete && job.CreatedAt.Before(cutoff) {
			jj := *job
			out = append(out, &jj)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryJobRepository) DeleteJob(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	delete(r.results, id)
	return nil
}

// MemoryEchoRepository is the in-memory EchoRepository.
type MemoryEchoRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.EchoJob
	items map[string][]*domain.EchoItem
}

// NewMemoryEchoRepository creates an empty repository.
func NewMemoryEchoRepository() *MemoryEchoRepository {
	return &MemoryEchoRepository{
		jobs:  make(map[string]*domain.EchoJob),
		items: make(map[string][]*domain.EchoItem),
	}
}

func (r *MemoryEchoRepository) CreateJob(_ context.Context, job *domain.EchoJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.Status = domain.JobStatusInProgress
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *MemoryEchoRepository) GetJob(_ context.Context, id string) (*domain.EchoJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *job
	return &out, nil
}

func (r *MemoryEchoRepository) AppendItem(_ context.Context, item *domain.EchoItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[item.JobID]
	if !ok {
		return 0, ErrNotFound
	}
	if job.Status == domain.JobStatusComplete {
		return 0, ErrJobComplete
	}
	seq := int64(len(r.items[item.JobID])) + 1
	stored := *item
	stored.ID = uuid.New().String()
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = time.Now()
	}
	r.items[item.JobID] = append(r.items[item.JobID], &stored)
	return seq, nil
}

func (r *MemoryEchoRepository) CompleteJob(_ context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status == domain.JobStatusComplete {
		return false, nil
	}
	job.Status = domain.JobStatusComplete
	job.CompletedAt = &now
	return true, nil
}

func (r *MemoryEchoRepository) ItemsSince(_ context.Context, jobID string, sinceSeq int64) ([]*domain.EchoItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.items[jobID]
	if sinceSeq >= int64(len(all)) {
		return nil, nil
	}
	out := make([]*domain.EchoItem, 0, int64(len(all))-sinceSeq)
	for i := sinceSeq; i < int64(len(all)); i++ {
		item := *all[i]
		out = append(out, &item)
	}
	return out, nil
}

func (r *MemoryEchoRepository) ExpiredJobs(_ context.Context, cutoff time.Time, limit int) ([]*domain.EchoJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.EchoJob
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusComplete && job.CreatedAt.Before(cutoff) {
			jj := *job
			out = append(out, &jj)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryEchoRepository) DeleteJob(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	delete(r.items, id)
	return nil
}

// MemoryBookingRepository is the in-memory BookingRepository; the embedded
// key map doubles as the IdempotencyRepository in memory mode so that
// CreateWithKey really is one atomic unit.
type MemoryBookingRepository struct {
	mu          sync.RWMutex
	bookings    map[string]*domain.Booking
	bySourceRef map[string]string
	keys        map[string]*domain.IdempotencyKey // agentID+scope+key
	snapshots   map[string][]byte
}

// NewMemoryBookingRepository creates an empty repository.
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings:    make(map[string]*domain.Booking),
		bySourceRef: make(map[string]string),
		keys:        make(map[string]*domain.IdempotencyKey),
		snapshots:   make(map[string][]byte),
	}
}

func idemKey(agentID, scope, key string) string { return agentID + "\x1f" + scope + "\x1f" + key }

// BookingCreateScope is the idempotency scope of BookingEngine.Create.
const BookingCreateScope = "booking:create"

func (r *MemoryBookingRepository) CreateWithKey(_ context.Context, b *domain.Booking, key *domain.IdempotencyKey, snapshot []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := idemKey(key.AgentID, BookingCreateScope, key.Key)
	if _, exists := r.keys[k]; exists {
		return ErrKeyConflict
	}
	if b.SourceRef != "" {
		if _, exists := r.bySourceRef[b.SourceID+"\x1f"+b.SourceRef]; exists {
			return ErrSourceRefTaken
		}
	}

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	stored := *b
	r.bookings[b.ID] = &stored
	if b.SourceRef != "" {
		r.bySourceRef[b.SourceID+"\x1f"+b.SourceRef] = b.ID
	}
	storedKey := *key
	storedKey.BookingID = b.ID
	r.keys[k] = &storedKey
	r.snapshots[b.ID] = append([]byte(nil), snapshot...)
	return nil
}

func (r *MemoryBookingRepository) Get(_ context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

func (r *MemoryBookingRepository) GetBySourceRef(_ context.Context, sourceRef string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bookings {
		if b.SourceRef == sourceRef {
			out := *b
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryBookingRepository) UpdateFromSource(_ context.Context, id string, status domain.BookingStatus, snapshot []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	if snapshot != nil {
		r.snapshots[id] = append([]byte(nil), snapshot...)
	}
	return nil
}

func (r *MemoryBookingRepository) Snapshot(_ context.Context, id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snapshots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), snap...), nil
}

func (r *MemoryBookingRepository) ExpiredBookings(_ context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Booking
	for _, b := range r.bookings {
		if b.IsTerminal() && b.UpdatedAt.Before(cutoff) {
			bb := *b
			out = append(out, &bb)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryBookingRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bookings[id]; ok && b.SourceRef != "" {
		delete(r.bySourceRef, b.SourceID+"\x1f"+b.SourceRef)
	}
	delete(r.bookings, id)
	delete(r.snapshots, id)
	return nil
}

// LookupKey implements IdempotencyRepository.Get against the same map
// CreateWithKey writes, so memory mode never sees an orphan key.
func (r *MemoryBookingRepository) LookupKey(_ context.Context, agentID, scope, key string) (*domain.IdempotencyKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[idemKey(agentID, scope, key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *k
	return &out, nil
}

// memoryIdempotencyRepository adapts MemoryBookingRepository's key map to
// the IdempotencyRepository interface.
type memoryIdempotencyRepository struct {
	bookings *MemoryBookingRepository
}

func (r *memoryIdempotencyRepository) Get(ctx context.Context, agentID, scope, key string) (*domain.IdempotencyKey, error) {
	return r.bookings.LookupKey(ctx, agentID, scope, key)
}

func (r *memoryIdempotencyRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.bookings.mu.Lock()
	defer r.bookings.mu.Unlock()
	var deleted int64
	for k, key := range r.bookings.keys {
		if now.After(key.ExpiresAt) {
			delete(r.bookings.keys, k)
			deleted++
		}
	}
	return deleted, nil
}

// MemoryHealthRepository is the in-memory HealthRepository.
type MemoryHealthRepository struct {
	mu     sync.RWMutex
	health map[string]domain.SourceHealth
}

// NewMemoryHealthRepository creates an empty repository.
func NewMemoryHealthRepository() *MemoryHealthRepository {
	return &MemoryHealthRepository{health: make(map[string]domain.SourceHealth)}
}

func (r *MemoryHealthRepository) Upsert(_ context.Context, h domain.SourceHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[h.SourceID] = h
	return nil
}

func (r *MemoryHealthRepository) Get(_ context.Context, sourceID string) (*domain.SourceHealth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[sourceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

func (r *MemoryHealthRepository) ListExcluded(_ context.Context, now time.Time) ([]*domain.SourceHealth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.SourceHealth
	for _, h := range r.health {
		if h.Excluded(now) {
			hh := h
			out = append(out, &hh)
		}
	}
	return out, nil
}

// NewMemoryRepositories wires the full in-memory set.
func NewMemoryRepositories() *Repositories {
	bookings := NewMemoryBookingRepository()
	return &Repositories{
		Companies:   NewMemoryCompanyReader(),
		Agreements:  NewMemoryAgreementRepository(),
		Coverage:    NewMemoryCoverageRepository(),
		Jobs:        NewMemoryJobRepository(),
		Echo:        NewMemoryEchoRepository(),
		Bookings:    bookings,
		Idempotency: &memoryIdempotencyRepository{bookings: bookings},
		Health:      NewMemoryHealthRepository(),
	}
}
