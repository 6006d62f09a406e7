package services

import (
	"fmt"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

const mediaFields = `
	id
	title { romaji english native }
	synonyms
	format
	status
	chapters
`

const pageInfoFields = `
	pageInfo { total currentPage lastPage hasNextPage perPage }
`

// searchQuery pages through manga whose titles match $search, best match first.
var searchQuery = `query SearchManga($search: String, $page: Int, $perPage: Int) {
	Page(page: $page, perPage: $perPage) {` + pageInfoFields + `
		media(type: MANGA, search: $search, sort: SEARCH_MATCH) {` + mediaFields + `}
	}
}`

// fetchByIDsQuery loads up to $perPage manga by ID.
var fetchByIDsQuery = `query FetchMangaByIDs($ids: [Int], $perPage: Int) {
	Page(page: 1, perPage: $perPage) {` + pageInfoFields + `
		media(type: MANGA, id_in: $ids) {` + mediaFields + `}
	}
}`

// compiledQuery is a parsed query document with its declared variables.
type compiledQuery struct {
	name      string
	source    string
	variables []string
}

var (
	searchOp     = mustCompile("SearchManga", searchQuery)
	fetchByIDsOp = mustCompile("FetchMangaByIDs", fetchByIDsQuery)
)

// compileQuery parses src and checks it holds exactly one query operation called name.
func compileQuery(name, src string) (*compiledQuery, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: name, Input: src})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("%s: expected 1 operation, found %d", name, len(doc.Operations))
	}

	op := doc.Operations[0]
	if op.Operation != ast.Query {
		return nil, fmt.Errorf("%s: expected a query, found %s", name, op.Operation)
	}
	if op.Name != name {
		return nil, fmt.Errorf("expected operation %s, found %s", name, op.Name)
	}

	vars := make([]string, 0, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		vars = append(vars, def.Variable)
	}

	return &compiledQuery{name: name, source: src, variables: vars}, nil
}

func mustCompile(name, src string) *compiledQuery {
	q, err := compileQuery(name, src)
	if err != nil {
		panic(err)
	}
	return q
}

// checkVariables rejects variables the operation does not declare.
func (q *compiledQuery) checkVariables(vars map[string]any) error {
	for k := range vars {
		if !slices.Contains(q.variables, k) {
			return fmt.Errorf("%s: undeclared variable $%s", q.name, k)
		}
	}
	return nil
}
