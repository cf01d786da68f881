package discovery

import (
	"context"
	"sync"

	"github.com/sealtrack/pncp-radar/pkg/pncp"
)

// mockClient implements pncp.Client with canned data and call counting, so
// tests can assert exactly how many API calls each stage spends.
type mockClient struct {
	mu sync.Mutex

	tendersByModality map[int][]pncp.Tender
	itemsByRef        map[pncp.TenderRef][]pncp.Item

	searchErr map[int]error
	itemsErr  map[pncp.TenderRef]error

	searchCalls int
	itemCalls   int
	sampleCalls int
	sampleRefs  []pncp.TenderRef

	// onSample runs after each sampling call, outside the lock.
	onSample func(ref pncp.TenderRef)
}

func newMockClient() *mockClient {
	return &mockClient{
		tendersByModality: map[int][]pncp.Tender{},
		itemsByRef:        map[pncp.TenderRef][]pncp.Item{},
		searchErr:         map[int]error{},
		itemsErr:          map[pncp.TenderRef]error{},
	}
}

func (m *mockClient) SearchTenders(_ context.Context, q pncp.SearchQuery, _ int) ([]pncp.Tender, int, error) {
	tenders, err := m.SearchAllTenders(context.Background(), q)
	return tenders, 0, err
}

func (m *mockClient) SearchAllTenders(_ context.Context, q pncp.SearchQuery) ([]pncp.Tender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if err := m.searchErr[q.Modality]; err != nil {
		return nil, err
	}
	return m.tendersByModality[q.Modality], nil
}

func (m *mockClient) TenderItems(_ context.Context, ref pncp.TenderRef) ([]pncp.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemCalls++
	if err := m.itemsErr[ref]; err != nil {
		return nil, err
	}
	return m.itemsByRef[ref], nil
}

func (m *mockClient) SampleItems(_ context.Context, ref pncp.TenderRef, n int) ([]pncp.Item, error) {
	m.mu.Lock()
	m.sampleCalls++
	m.sampleRefs = append(m.sampleRefs, ref)
	err := m.itemsErr[ref]
	items := m.itemsByRef[ref]
	m.mu.Unlock()

	if m.onSample != nil {
		m.onSample(ref)
	}
	if err != nil {
		return nil, err
	}
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

func (m *mockClient) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls + m.itemCalls + m.sampleCalls
}

// mockStore implements RecordStore in memory.
type mockStore struct {
	mu sync.Mutex

	existing map[RecordKey]bool

	orgs    map[string]OrganizationRow
	tenders map[RecordKey]Candidate
	items   map[RecordKey][]ItemRow
	runIDs  map[RecordKey]string

	existingErr error
	orgErr      error
	tenderErr   map[RecordKey]error
}

func newMockStore() *mockStore {
	return &mockStore{
		existing:  map[RecordKey]bool{},
		orgs:      map[string]OrganizationRow{},
		tenders:   map[RecordKey]Candidate{},
		items:     map[RecordKey][]ItemRow{},
		runIDs:    map[RecordKey]string{},
		tenderErr: map[RecordKey]error{},
	}
}

func (m *mockStore) Migrate(context.Context) error { return nil }

func (m *mockStore) ExistingKeys(_ context.Context, keys []RecordKey) (map[RecordKey]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existingErr != nil {
		return nil, m.existingErr
	}
	out := map[RecordKey]bool{}
	for _, k := range keys {
		if m.existing[k] {
			out[k] = true
		}
	}
	return out, nil
}

func (m *mockStore) UpsertOrganization(_ context.Context, org OrganizationRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orgErr != nil {
		return m.orgErr
	}
	m.orgs[org.CNPJ] = org
	return nil
}

func (m *mockStore) UpsertTender(_ context.Context, c Candidate, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.tenderErr[c.Key()]; err != nil {
		return err
	}
	m.tenders[c.Key()] = c
	m.runIDs[c.Key()] = runID
	return nil
}

func (m *mockStore) UpsertItemsBatch(_ context.Context, key RecordKey, items []ItemRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = items
	return nil
}

func (m *mockStore) Summarize(context.Context) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summary{
		Organizations: int64(len(m.orgs)),
		Tenders:       int64(len(m.tenders)),
	}, nil
}

func (m *mockStore) Close() error { return nil }
