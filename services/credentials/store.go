package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

var ErrPathRequired = errors.New("credentials path not provided")

// expiryLeeway is how close to expiry a token is still treated as expired,
// so requests never go out with a token about to lapse mid-flight.
const expiryLeeway = 60 * time.Second

// Record is the single persisted credential set for the MAL API. It is read
// before every token-dependent operation and overwritten wholesale after
// every mutation, so no token state survives only in memory.
type Record struct {
	ClientID          string `json:"clientId"`
	ClientSecret      string `json:"clientSecret,omitempty"`
	RefreshToken      string `json:"refreshToken,omitempty"`
	AuthorizationCode string `json:"authorizationCode,omitempty"`
	CodeVerifier      string `json:"codeVerifier,omitempty"`
	AccessToken       string `json:"accessToken,omitempty"`
	ExpiresAt         int64  `json:"expiresAt,omitempty"`
	Username          string `json:"username,omitempty"`
}

// TokenValid reports whether the stored access token is usable at the given
// time: present, with at least the leeway left before expiry.
func (r Record) TokenValid(now time.Time) bool {
	if r.AccessToken == "" {
		return false
	}
	return now.Add(expiryLeeway).Unix() < r.ExpiresAt
}

// HasClientCredentials reports whether the record carries the client identity
// required for any token exchange.
func (r Record) HasClientCredentials() bool {
	return strings.TrimSpace(r.ClientID) != "" && strings.TrimSpace(r.ClientSecret) != ""
}

// Store persists the credential Record as a JSON file. The filesystem is
// abstracted so tests can run against an in-memory one.
type Store struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewStore creates a store backed by the given filesystem and file path.
func NewStore(fsys afero.Fs, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	return &Store{fs: fsys, path: path}, nil
}

// Load reads the current record from disk. A missing file yields a zero
// record: credentials are provisioned out of band.
func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

// Save overwrites the persisted record atomically.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(rec)
}

// DiscardAccessToken drops the stored access token and its expiry, persisting
// the change so the next token check is forced onto a renewal path.
func (s *Store) DiscardAccessToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked()
	if err != nil {
		return err
	}
	rec.AccessToken = ""
	rec.ExpiresAt = 0
	return s.saveLocked(rec)
}

// DefaultUsername returns the username stored in the record, if any.
func (s *Store) DefaultUsername() string {
	rec, err := s.Load()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(rec.Username)
}

func (s *Store) loadLocked() (Record, error) {
	file, err := s.fs.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("open credentials file: %w", err)
	}
	defer file.Close()

	var rec Record
	if err := json.NewDecoder(file).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("decode credentials: %w", err)
	}
	return rec, nil
}

func (s *Store) saveLocked(rec Record) error {
	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create credentials dir: %w", err)
		}
	}

	buf, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	buf = append(buf, '\n')

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf, 0o600); err != nil {
		return fmt.Errorf("write credentials temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}
