package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchPagePostsGraphQLQuery(t *testing.T) {
	var gotBody graphqlRequest
	var gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"transactions":[{"timestamp":"900000","events":[{"__typename":"Clear"}]}]}}`))
	}))
	defer srv.Close()

	c := New(0)
	txs, err := c.FetchPage(context.Background(), srv.URL, "{ transactions { timestamp } }")
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected application/json content type, got %q", gotContentType)
	}
	if gotBody.Query != "{ transactions { timestamp } }" {
		t.Fatalf("unexpected request query: %q", gotBody.Query)
	}
	if len(txs) != 1 || txs[0].Timestamp != "900000" {
		t.Fatalf("unexpected transactions: %+v", txs)
	}
}

func TestFetchPageNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(0)
	if _, err := c.FetchPage(context.Background(), srv.URL, "{}"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	pageSize := 2
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch calls {
		case 1:
			_, _ = w.Write([]byte(`{"data":{"transactions":[{"timestamp":"1"},{"timestamp":"2"}]}}`))
		case 2:
			_, _ = w.Write([]byte(`{"data":{"transactions":[{"timestamp":"3"}]}}`))
		default:
			t.Fatalf("unexpected extra call %d", calls)
		}
	}))
	defer srv.Close()

	c := New(pageSize)
	var seenSkips []int
	all, err := c.FetchAll(context.Background(), srv.URL, func(skip int) string {
		seenSkips = append(seenSkips, skip)
		return "query"
	})
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 total transactions, got %d", len(all))
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 page requests, got %d", calls)
	}
	if len(seenSkips) != 2 || seenSkips[0] != 0 || seenSkips[1] != pageSize {
		t.Fatalf("unexpected skip sequence: %v", seenSkips)
	}
}
