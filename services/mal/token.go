package mal

import (
	"errors"
	"log/slog"
	"time"

	"anibridge/services/credentials"
)

var (
	ErrMissingClientCredentials = errors.New("client id and client secret must be configured")
	ErrNoCredentialPath         = errors.New("no valid credential path available")
	ErrMalformedTokenResponse   = errors.New("token response missing access_token")
)

// CredentialStore is the durable record the token manager reads and mutates.
type CredentialStore interface {
	Load() (credentials.Record, error)
	Save(credentials.Record) error
	DiscardAccessToken() error
}

var _ CredentialStore = (*credentials.Store)(nil)

// TokenManager keeps the persisted credential record holding a usable access
// token, renewing it through whichever exchange the record allows.
type TokenManager struct {
	store  CredentialStore
	client *Client
	now    func() time.Time
}

// NewTokenManager creates a token manager over the given store and client.
func NewTokenManager(store CredentialStore, client *Client) *TokenManager {
	return &TokenManager{store: store, client: client, now: time.Now}
}

// grant is one credential-exchange strategy. Grants are attempted in order;
// the first to succeed wins, a failed attempt falls through to the next.
type grant struct {
	name      string
	available bool
	exchange  func() (*TokenResponse, error)
}

func (m *TokenManager) grants(rec credentials.Record) []grant {
	return []grant{
		{
			name:      "refresh_token",
			available: rec.RefreshToken != "",
			exchange: func() (*TokenResponse, error) {
				return m.client.ExchangeRefreshToken(rec.ClientID, rec.ClientSecret, rec.RefreshToken)
			},
		},
		{
			name:      "authorization_code",
			available: rec.AuthorizationCode != "" && rec.CodeVerifier != "",
			exchange: func() (*TokenResponse, error) {
				return m.client.ExchangeAuthorizationCode(rec.ClientID, rec.ClientSecret, rec.AuthorizationCode, rec.CodeVerifier)
			},
		},
	}
}

// EnsureValidToken returns a non-expired access token, renewing and
// persisting one first when the stored token is missing or about to expire.
// A still-valid stored token is returned without any network call.
func (m *TokenManager) EnsureValidToken() (string, error) {
	rec, err := m.store.Load()
	if err != nil {
		return "", err
	}

	if rec.TokenValid(m.now()) {
		return rec.AccessToken, nil
	}

	if !rec.HasClientCredentials() {
		return "", ErrMissingClientCredentials
	}

	for _, g := range m.grants(rec) {
		if !g.available {
			continue
		}
		slog.Info("attempting token exchange", "grant", g.name)
		token, err := g.exchange()
		if err != nil {
			slog.Warn("token exchange failed", "grant", g.name, "error", err)
			continue
		}
		return m.apply(rec, token)
	}

	return "", ErrNoCredentialPath
}

// apply folds a token response into the record and persists it. The refresh
// token is only replaced when the response carried one.
func (m *TokenManager) apply(rec credentials.Record, token *TokenResponse) (string, error) {
	if token.AccessToken == "" {
		return "", ErrMalformedTokenResponse
	}

	rec.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		rec.RefreshToken = token.RefreshToken
	}
	rec.ExpiresAt = m.now().Unix() + token.ExpiresIn

	if err := m.store.Save(rec); err != nil {
		return "", err
	}

	return rec.AccessToken, nil
}
