// package services defines the [Catalog] interface for the target manga catalog
//
// AniList (GraphQL)
package services

import (
	"context"

	"github.com/desertthunder/mangax/internal/models"
)

// Catalog is the target catalog search API.
type Catalog interface {
	// Search returns one page of records matching query. Pages are 1-based.
	Search(ctx context.Context, query string, page, perPage int) (*SearchPage, error)

	// FetchByIDs returns the records for the given catalog IDs. IDs the catalog does not know are
	// simply absent from the result.
	FetchByIDs(ctx context.Context, ids []int) ([]models.CandidateRecord, error)

	// Name returns the name of the catalog (e.g., "AniList")
	Name() string
}

// SearchPage is one page of search results.
type SearchPage struct {
	Records     []models.CandidateRecord
	CurrentPage int
	LastPage    int
	Total       int
	HasNextPage bool
}
