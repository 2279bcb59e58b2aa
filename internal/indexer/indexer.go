// Package indexer is the subgraph (indexer) HTTP collaborator (§6): a thin
// GraphQL-over-HTTP client with skip-based pagination, out of the core's
// scope per spec but still part of the complete repository.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/rainarb/solver/internal/errs"
)

// DefaultPageSize is the subgraph's page size for skip-based pagination
// (§6): "Pagination is by skip increments of DEFAULT_PAGE_SIZE; continuation
// while page is full."
const DefaultPageSize = 1000

// SgEvent is one event nested in a transaction; only its typename is
// structurally relevant to the downtime collaborator.
type SgEvent struct {
	Typename string `json:"__typename"`
}

// SgTransaction is one subgraph transaction record.
type SgTransaction struct {
	Timestamp string    `json:"timestamp"` // seconds, string per wire format
	Events    []SgEvent `json:"events"`
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type transactionsResponse struct {
	Data struct {
		Transactions []SgTransaction `json:"transactions"`
	} `json:"data"`
}

// Client queries a subgraph's GraphQL endpoint.
type Client struct {
	HTTPClient *http.Client
	PageSize   int
}

// New constructs a Client. pageSize <= 0 uses DefaultPageSize.
func New(pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{HTTPClient: http.DefaultClient, PageSize: pageSize}
}

// QueryBuilder renders the GraphQL query body for one page, given the skip
// offset. Callers own the actual query shape (field selection, filters);
// this client only owns the transport and pagination loop.
type QueryBuilder func(skip int) string

// FetchPage issues a single POST with the given GraphQL query body.
func (c *Client) FetchPage(ctx context.Context, url, query string) ([]SgTransaction, error) {
	body, err := json.Marshal(graphqlRequest{Query: query})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "indexer: marshal query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "indexer: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "indexer: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindTransport, "indexer: unexpected status "+resp.Status)
	}

	var parsed transactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.Wrap(errs.KindDecode, err, "indexer: decode response")
	}
	return parsed.Data.Transactions, nil
}

// FetchAll pages through the subgraph with skip increments of PageSize,
// continuing only while the most recent page was full (§6).
func (c *Client) FetchAll(ctx context.Context, url string, build QueryBuilder) ([]SgTransaction, error) {
	var all []SgTransaction
	skip := 0
	for {
		page, err := c.FetchPage(ctx, url, build(skip))
		if err != nil {
			return all, err
		}
		all = append(all, page...)
		if len(page) < c.PageSize {
			return all, nil
		}
		skip += c.PageSize
	}
}
