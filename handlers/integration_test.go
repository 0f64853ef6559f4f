package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"anibridge/handlers"
	"anibridge/models"
	"anibridge/services/animeids"
	"anibridge/services/credentials"
	"anibridge/services/mal"

	"github.com/spf13/afero"
)

// Exercises the whole pipeline against fake upstreams: token exchange,
// paginated list fetch and cross-reference enrichment.
func TestAnimelistEndToEnd(t *testing.T) {
	var upstreamURL string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "granted",
				"token_type":    "Bearer",
				"expires_in":    2678400,
				"refresh_token": "rotated",
			})
		case "/users/spazus/animelist":
			if got := r.Header.Get("Authorization"); got != "Bearer granted" {
				t.Errorf("unexpected authorization header %q", got)
			}
			if r.URL.Query().Get("offset") == "" {
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"node": map[string]any{"id": 1, "title": "Cowboy Bebop"}},
						{"node": map[string]any{"id": 20, "title": "Naruto"}},
					},
					"paging": map[string]any{"next": upstreamURL + "/users/spazus/animelist?offset=100"},
				})
			} else {
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"node": map[string]any{"id": 30, "title": "Neon Genesis Evangelion"}},
					},
					"paging": map[string]any{},
				})
			}
		default:
			t.Errorf("unexpected request path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()
	upstreamURL = upstream.URL

	idsDoc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"1":  {"tvdb_id": 76885, "imdb_id": "tt0213338"},
			"20": {"mal_id": 20, "tvdb_id": 78857},
			"44": {"tvdb_id": 70350, "imdb_id": "tt0112159"},
			"xx": {"mal_id": "not numeric"}
		}`))
	}))
	defer idsDoc.Close()

	store, err := credentials.NewStore(afero.NewMemMapFs(), "cache/credentials.json")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	seed := credentials.Record{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "refresh",
	}
	if err := store.Save(seed); err != nil {
		t.Fatalf("failed to seed credentials: %v", err)
	}

	client := mal.NewClient(upstream.URL+"/oauth/token", upstream.URL)
	tokens := mal.NewTokenManager(store, client)
	fetcher := mal.NewFetcher(client, tokens, store)
	crossref := animeids.NewClient(idsDoc.URL)

	h := handlers.NewAnimelistHandler(fetcher, crossref, store)

	req := httptest.NewRequest(http.MethodGet, "/animelist?username=spazus", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var items []models.AnimeEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d: %+v", len(items), items)
	}

	if items[0].Title != "Cowboy Bebop" || items[0].MALID != 1 {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[0].ID != float64(76885) || items[0].IMDBID != "tt0213338" {
		t.Fatalf("expected first item enriched, got %+v", items[0])
	}
	if items[1].MALID != 20 || items[1].ID != float64(78857) || items[1].IMDBID != "" {
		t.Fatalf("unexpected second item %+v", items[1])
	}
	if items[2].MALID != 30 || items[2].ID != nil {
		t.Fatalf("expected third item without cross-reference, got %+v", items[2])
	}

	// The granted token and rotated refresh token were persisted.
	rec2, err := store.Load()
	if err != nil {
		t.Fatalf("failed to load credentials: %v", err)
	}
	if rec2.AccessToken != "granted" || rec2.RefreshToken != "rotated" {
		t.Fatalf("expected persisted token state, got %+v", rec2)
	}
}
