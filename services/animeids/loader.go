package animeids

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client fetches the Kometa Anime-IDs mapping document.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient creates a client for the mapping document at the given URL.
func NewClient(docURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        docURL,
	}
}

// CrossRef holds the alternate identifiers of one document entry. The TVDB id
// is kept in whatever JSON type the document used, since downstream output
// passes it through unchanged.
type CrossRef struct {
	MALID  json.RawMessage `json:"mal_id"`
	TVDBID any             `json:"tvdb_id"`
	IMDBID string          `json:"imdb_id"`
}

// LoadMap fetches the mapping document and indexes it by MAL id. An entry's
// key is its embedded mal_id when that parses as an integer, the document key
// otherwise; entries where neither parses are skipped. The map is built fresh
// on every call.
func (c *Client) LoadMap() (map[int]CrossRef, error) {
	resp, err := c.httpClient.Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("anime ids request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anime ids fetch failed: %s - %s", resp.Status, string(respBody))
	}

	var doc map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode anime ids: %w", err)
	}

	refs := make(map[int]CrossRef, len(doc))
	for key, raw := range doc {
		var ref CrossRef
		// Malformed values are tolerated: whatever fields decoded are kept,
		// and the entry still counts if its key parses.
		_ = json.Unmarshal(raw, &ref)

		id, ok := deriveKey(key, ref.MALID)
		if !ok {
			continue
		}
		refs[id] = ref
	}

	return refs, nil
}

// deriveKey prefers the embedded mal_id over the document's own key.
func deriveKey(key string, malID json.RawMessage) (int, bool) {
	if len(malID) > 0 {
		if id, ok := parseInt(malID); ok {
			return id, true
		}
	}
	if id, err := strconv.Atoi(key); err == nil {
		return id, true
	}
	return 0, false
}

// parseInt accepts a JSON number or a numeric string.
func parseInt(raw json.RawMessage) (int, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}
