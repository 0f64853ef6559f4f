package mal

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const pageLimit = 100 // max entries per animelist page

// Client handles MyAnimeList API interactions for OAuth and list fetching.
type Client struct {
	httpClient *http.Client
	tokenURL   string
	apiBaseURL string
}

// NewClient creates a new MAL API client for the given endpoints.
func NewClient(tokenURL, apiBaseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenURL:   tokenURL,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
	}
}

// TokenResponse represents the response from the OAuth token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// ListNode carries the anime fields we use from an animelist entry. The id is
// a pointer so entries where the field is absent can be told apart from a
// genuine id of 0.
type ListNode struct {
	ID    *int   `json:"id"`
	Title string `json:"title"`
}

// ListEntry represents one entry of a user's animelist.
type ListEntry struct {
	Node ListNode `json:"node"`
}

// listPage is the paging envelope the animelist endpoint returns.
type listPage struct {
	Data   []ListEntry `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// UpstreamError reports a non-success status from a MAL data call.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("mal animelist fetch failed: %d - %s", e.StatusCode, e.Body)
}

// ExchangeRefreshToken trades a refresh token for a fresh token set.
func (c *Client) ExchangeRefreshToken(clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)
	return c.exchange(form)
}

// ExchangeAuthorizationCode trades a one-time authorization code (with its
// paired PKCE verifier) for a token set.
func (c *Client) ExchangeAuthorizationCode(clientID, clientSecret, code, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)
	return c.exchange(form)
}

func (c *Client) exchange(form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequest(http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mal token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mal token exchange failed: %s - %s", resp.Status, string(respBody))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &token, nil
}

// listPages returns a lazy walk over the animelist pages for a user. The
// sequence is finite and cannot be restarted: each successful fetch advances
// to whatever next URL the server supplied, until none is given.
func (c *Client) listPages(username, status string) *pager {
	q := url.Values{}
	q.Set("status", status)
	q.Set("limit", strconv.Itoa(pageLimit))
	return &pager{
		client: c,
		url:    fmt.Sprintf("%s/users/%s/animelist?%s", c.apiBaseURL, url.PathEscape(username), q.Encode()),
	}
}

type pager struct {
	client *Client
	url    string // next request URL; empty once exhausted
}

func (p *pager) done() bool { return p.url == "" }

// fetch retrieves the current page. On success the pager advances; on error
// it stays on the same page so the caller may retry it.
func (p *pager) fetch(token string) ([]ListEntry, error) {
	page, err := p.client.getListPage(p.url, token)
	if err != nil {
		return nil, err
	}
	p.url = page.Paging.Next
	return page.Data, nil
}

func (c *Client) getListPage(pageURL, token string) (*listPage, error) {
	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mal api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var page listPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &page, nil
}
