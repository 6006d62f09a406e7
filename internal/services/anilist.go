// AniList GraphQL implementation of [Catalog]
//
// Response types follow https://anilist.gitbook.io/anilist-apiv2-docs/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
	"golang.org/x/oauth2"
)

const (
	anilistEndpoint = "https://graphql.anilist.co"
	// MaxPerPage is the largest page AniList serves.
	MaxPerPage = 50
)

// AniListTitle is the title object of a media record.
type AniListTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

// AniListMedia is a manga record.
type AniListMedia struct {
	ID       int          `json:"id"`
	Title    AniListTitle `json:"title"`
	Synonyms []string     `json:"synonyms"`
	Format   string       `json:"format"`
	Status   string       `json:"status"`
	Chapters *int         `json:"chapters"`
}

// AniListPageInfo is the pagination block of a Page.
type AniListPageInfo struct {
	Total       int  `json:"total"`
	CurrentPage int  `json:"currentPage"`
	LastPage    int  `json:"lastPage"`
	HasNextPage bool `json:"hasNextPage"`
	PerPage     int  `json:"perPage"`
}

// AniListPage is the Page object both queries return.
type AniListPage struct {
	PageInfo AniListPageInfo `json:"pageInfo"`
	Media    []AniListMedia  `json:"media"`
}

type pageData struct {
	Page *AniListPage `json:"Page"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// AniListService implements [Catalog] against the AniList GraphQL API.
//
// An access token is optional; when set every request carries it as a bearer token.
type AniListService struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

// NewAniListService creates a catalog client. An empty endpoint uses the public AniList API and a
// nil client uses [http.DefaultClient].
func NewAniListService(endpoint, accessToken string, client *http.Client) *AniListService {
	if endpoint == "" {
		endpoint = anilistEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}

	if accessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
		authed.Timeout = client.Timeout
		client = authed
	}

	return &AniListService{endpoint: endpoint, httpClient: client, logger: shared.NewNopLogger()}
}

// NewAniListServiceFromConfig creates a catalog client from the [catalog] config section.
func NewAniListServiceFromConfig(cfg shared.CatalogConfig) *AniListService {
	return NewAniListService(cfg.Endpoint, cfg.AccessToken, &http.Client{Timeout: cfg.Timeout})
}

// SetLogger replaces the discard logger.
func (s *AniListService) SetLogger(l *log.Logger) {
	s.logger = l
}

func (s *AniListService) Name() string {
	return "AniList"
}

// Search returns one page of manga matching query.
func (s *AniListService) Search(ctx context.Context, query string, page, perPage int) (*SearchPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	vars := map[string]any{"search": query, "page": page, "perPage": perPage}

	p, err := s.execute(ctx, searchOp, vars, query)
	if err != nil {
		return nil, err
	}

	return &SearchPage{
		Records:     toRecords(p.Media),
		CurrentPage: p.PageInfo.CurrentPage,
		LastPage:    p.PageInfo.LastPage,
		Total:       p.PageInfo.Total,
		HasNextPage: p.PageInfo.HasNextPage,
	}, nil
}

// FetchByIDs loads up to [MaxPerPage] manga by ID in a single request.
func (s *AniListService) FetchByIDs(ctx context.Context, ids []int) ([]models.CandidateRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxPerPage {
		return nil, fmt.Errorf("%w: at most %d IDs per request, got %d", shared.ErrInvalidArgument, MaxPerPage, len(ids))
	}

	label := joinIDs(ids)
	p, err := s.execute(ctx, fetchByIDsOp, map[string]any{"ids": ids, "perPage": len(ids)}, label)
	if err != nil {
		return nil, err
	}
	return toRecords(p.Media), nil
}

// execute POSTs a GraphQL operation and decodes its Page.
func (s *AniListService) execute(ctx context.Context, op *compiledQuery, vars map[string]any, label string) (*AniListPage, error) {
	if err := op.checkVariables(vars); err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(graphQLRequest{Query: op.source, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Query: label, Message: err.Error(), Err: shared.ErrAPIRequest}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Query: label, Message: err.Error(), Err: shared.ErrAPIRequest}
	}

	s.logger.Debug("catalog request", "op", op.name, "query", label, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp, label, string(body))
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Query: label, Message: err.Error(), Err: shared.ErrMalformedResponse}
	}

	if len(gqlResp.Errors) > 0 {
		return nil, graphQLErrors(gqlResp.Errors, resp.StatusCode, label)
	}

	var data pageData
	if len(gqlResp.Data) == 0 {
		return nil, &APIError{Status: resp.StatusCode, Query: label, Message: "missing data", Err: shared.ErrMalformedResponse}
	}
	if err := json.Unmarshal(gqlResp.Data, &data); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Query: label, Message: err.Error(), Err: shared.ErrMalformedResponse}
	}
	if data.Page == nil {
		return nil, &APIError{Status: resp.StatusCode, Query: label, Message: "missing Page", Err: shared.ErrMalformedResponse}
	}

	return data.Page, nil
}

// graphQLErrors folds the errors array into one [APIError], honouring an embedded status.
func graphQLErrors(errs []graphQLError, status int, label string) *APIError {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
		if e.Status != 0 {
			status = e.Status
		}
	}

	apiErr := &APIError{Status: status, Query: label, Message: strings.Join(msgs, "; "), Err: shared.ErrAPIRequest}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.Err = shared.ErrAuthFailed
	case status == http.StatusTooManyRequests:
		apiErr.Err = shared.ErrRateLimited
	case status >= http.StatusInternalServerError:
		apiErr.Err = shared.ErrServiceUnavailable
	}
	return apiErr
}

func toRecords(media []AniListMedia) []models.CandidateRecord {
	records := make([]models.CandidateRecord, 0, len(media))
	for _, m := range media {
		records = append(records, m.Record())
	}
	return records
}

// Record converts the media to a [models.CandidateRecord].
func (m AniListMedia) Record() models.CandidateRecord {
	rec := models.CandidateRecord{
		ExternalID: m.ID,
		Titles: models.TitleSet{
			Primary:   m.Title.Romaji,
			Alternate: m.Title.English,
			Native:    m.Title.Native,
		},
		Synonyms: m.Synonyms,
		Format:   m.Format,
		Status:   m.Status,
	}
	if m.Chapters != nil {
		rec.ChapterCount = *m.Chapters
	}
	return rec
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

var _ Catalog = (*AniListService)(nil)
