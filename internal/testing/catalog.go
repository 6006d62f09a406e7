package testing

import (
	"context"
	"slices"
	"sync"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/services"
)

// MockCatalog is a scripted [services.Catalog].
//
// Search serves pages registered with AddPages keyed by the exact query string; unknown queries get
// an empty page. SearchFunc and FetchFunc, when set, replace the scripted behaviour.
type MockCatalog struct {
	mu          sync.Mutex
	pages       map[string][]services.SearchPage
	records     map[int]models.CandidateRecord
	searchCalls []string
	fetchCalls  [][]int
	inFlight    int
	maxInFlight int

	SearchFunc func(ctx context.Context, query string, page, perPage int) (*services.SearchPage, error)
	FetchFunc  func(ctx context.Context, ids []int) ([]models.CandidateRecord, error)
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		pages:   make(map[string][]services.SearchPage),
		records: make(map[int]models.CandidateRecord),
	}
}

// AddTitle registers a single result page for query.
func (m *MockCatalog) AddTitle(query string, records ...models.CandidateRecord) {
	m.AddPages(query, records)
}

// AddPages registers consecutive result pages for query.
func (m *MockCatalog) AddPages(query string, pages ...[]models.CandidateRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]services.SearchPage, len(pages))
	for i, recs := range pages {
		out[i] = services.SearchPage{
			Records:     recs,
			CurrentPage: i + 1,
			LastPage:    len(pages),
			HasNextPage: i < len(pages)-1,
		}
		for _, r := range recs {
			m.records[r.ExternalID] = r
		}
	}
	m.pages[query] = out
}

// AddRecords makes records available to FetchByIDs only.
func (m *MockCatalog) AddRecords(records ...models.CandidateRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ExternalID] = r
	}
}

func (m *MockCatalog) Name() string { return "mock" }

func (m *MockCatalog) Search(ctx context.Context, query string, page, perPage int) (*services.SearchPage, error) {
	m.mu.Lock()
	m.searchCalls = append(m.searchCalls, query)
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	fn := m.SearchFunc
	pages := m.pages[query]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, query, page, perPage)
	}

	if page < 1 || page > len(pages) {
		return &services.SearchPage{CurrentPage: page, LastPage: len(pages)}, nil
	}
	p := pages[page-1]
	return &p, nil
}

func (m *MockCatalog) FetchByIDs(ctx context.Context, ids []int) ([]models.CandidateRecord, error) {
	m.mu.Lock()
	m.fetchCalls = append(m.fetchCalls, slices.Clone(ids))
	fn := m.FetchFunc
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, ids)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CandidateRecord
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// SearchCalls returns the queries searched, in order.
func (m *MockCatalog) SearchCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.searchCalls)
}

// FetchCalls returns the ID chunks fetched, in order.
func (m *MockCatalog) FetchCalls() [][]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.fetchCalls)
}

// MaxInFlight is the highest number of concurrent Search calls observed.
func (m *MockCatalog) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

var _ services.Catalog = (*MockCatalog)(nil)
