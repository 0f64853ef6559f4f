package mal

import (
	"errors"
	"log/slog"
	"net/http"
)

// Fetcher retrieves complete animelists, transparently keeping the access
// token usable across the paginated walk.
type Fetcher struct {
	client *Client
	tokens *TokenManager
	store  CredentialStore
}

// NewFetcher creates a fetcher over the given client, token manager and
// credential store.
func NewFetcher(client *Client, tokens *TokenManager, store CredentialStore) *Fetcher {
	return &Fetcher{client: client, tokens: tokens, store: store}
}

// FetchAnimelist retrieves every page of the user's animelist filtered by
// status, in the order the server returns them. A single 401 anywhere in the
// walk discards the persisted access token, forces a renewal and retries the
// same page once; a second authentication failure, or any other non-success
// status, fails the whole fetch.
func (f *Fetcher) FetchAnimelist(username, status string) ([]ListEntry, error) {
	token, err := f.tokens.EnsureValidToken()
	if err != nil {
		return nil, err
	}

	pages := f.client.listPages(username, status)

	var items []ListEntry
	retried := false
	for !pages.done() {
		entries, err := pages.fetch(token)
		if err != nil {
			var ue *UpstreamError
			if errors.As(err, &ue) && ue.StatusCode == http.StatusUnauthorized && !retried {
				retried = true
				slog.Info("received 401, renewing token once", "username", username)
				if err := f.store.DiscardAccessToken(); err != nil {
					return nil, err
				}
				token, err = f.tokens.EnsureValidToken()
				if err != nil {
					return nil, err
				}
				continue // retry the same page with the new token
			}
			return nil, err
		}
		items = append(items, entries...)
	}

	return items, nil
}
