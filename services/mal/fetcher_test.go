package mal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"anibridge/services/credentials"
)

func intp(v int) *int { return &v }

func writePage(w http.ResponseWriter, next string, ids ...int) {
	page := listPage{}
	for _, id := range ids {
		page.Data = append(page.Data, ListEntry{Node: ListNode{ID: intp(id), Title: "anime " + strconv.Itoa(id)}})
	}
	page.Paging.Next = next
	json.NewEncoder(w).Encode(page)
}

func newTestFetcher(store *memStore, baseURL string) *Fetcher {
	client := NewClient(baseURL+"/oauth/token", baseURL)
	tokens := NewTokenManager(store, client)
	tokens.now = fixedNow
	return NewFetcher(client, tokens, store)
}

func validStore(token string) *memStore {
	return &memStore{rec: credentials.Record{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		AccessToken:  token,
		ExpiresAt:    fixedNow().Unix() + 3600,
	}}
}

func TestFetchAnimelistWalksAllPages(t *testing.T) {
	var gotQueries []string
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header %q", got)
		}
		gotQueries = append(gotQueries, r.URL.RawQuery)
		switch r.URL.Query().Get("offset") {
		case "":
			writePage(w, srvURL+"/users/spazus/animelist?offset=100", 1, 2)
		case "100":
			writePage(w, "", 3)
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	f := newTestFetcher(validStore("tok"), srv.URL)

	entries, err := f.FetchAnimelist("spazus", "watching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []int{1, 2, 3} {
		if got := *entries[i].Node.ID; got != want {
			t.Fatalf("entry %d: expected id %d, got %d", i, want, got)
		}
	}

	if len(gotQueries) != 2 {
		t.Fatalf("expected 2 page requests, got %d", len(gotQueries))
	}
	first, err := url.ParseQuery(gotQueries[0])
	if err != nil {
		t.Fatalf("failed to parse first query: %v", err)
	}
	if first.Get("status") != "watching" || first.Get("limit") != "100" {
		t.Fatalf("unexpected first page query %q", gotQueries[0])
	}
}

func TestFetchAnimelistRecoversFromSingle401(t *testing.T) {
	var listCalls, tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "renewed", ExpiresIn: 3600})
	})
	mux.HandleFunc("/users/spazus/animelist", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		if r.Header.Get("Authorization") == "Bearer stale" {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
			return
		}
		writePage(w, "", 7)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := validStore("stale")
	f := newTestFetcher(store, srv.URL)

	entries, err := f.FetchAnimelist("spazus", "watching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || *entries[0].Node.ID != 7 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if listCalls != 2 {
		t.Fatalf("expected the page retried once, got %d calls", listCalls)
	}
	if tokenCalls != 1 {
		t.Fatalf("expected one token renewal, got %d", tokenCalls)
	}
	if store.rec.AccessToken != "renewed" {
		t.Fatalf("expected renewed token persisted, got %q", store.rec.AccessToken)
	}
}

func TestFetchAnimelistSecond401Fails(t *testing.T) {
	var listCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "still-bad", ExpiresIn: 3600})
	})
	mux.HandleFunc("/users/spazus/animelist", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(validStore("stale"), srv.URL)

	_, err := f.FetchAnimelist("spazus", "watching")
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 upstream error, got %v", err)
	}
	if listCalls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", listCalls)
	}
}

func TestFetchAnimelistOtherStatusFailsImmediately(t *testing.T) {
	var listCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(validStore("tok"), srv.URL)

	_, err := f.FetchAnimelist("spazus", "watching")
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 upstream error, got %v", err)
	}
	if listCalls != 1 {
		t.Fatalf("expected no retry on 500, got %d calls", listCalls)
	}
}

func TestFetchAnimelistTokenFailurePropagates(t *testing.T) {
	store := &memStore{rec: credentials.Record{RefreshToken: "refresh"}}
	f := newTestFetcher(store, "http://unused")

	if _, err := f.FetchAnimelist("spazus", "watching"); !errors.Is(err, ErrMissingClientCredentials) {
		t.Fatalf("expected ErrMissingClientCredentials, got %v", err)
	}
}
