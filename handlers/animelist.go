package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"anibridge/services/animeids"
	"anibridge/services/credentials"
	"anibridge/services/enrich"
	"anibridge/services/mal"
)

const defaultStatus = "watching"

type listFetcher interface {
	FetchAnimelist(username, status string) ([]mal.ListEntry, error)
}

var _ listFetcher = (*mal.Fetcher)(nil)

type crossrefLoader interface {
	LoadMap() (map[int]animeids.CrossRef, error)
}

var _ crossrefLoader = (*animeids.Client)(nil)

type usernameSource interface {
	DefaultUsername() string
}

var _ usernameSource = (*credentials.Store)(nil)

// AnimelistHandler serves the enriched animelist endpoint. It only
// orchestrates and formats: all upstream and token behavior lives in the
// services it wraps.
type AnimelistHandler struct {
	Fetcher  listFetcher
	CrossRef crossrefLoader
	Defaults usernameSource
}

func NewAnimelistHandler(fetcher listFetcher, crossref crossrefLoader, defaults usernameSource) *AnimelistHandler {
	return &AnimelistHandler{Fetcher: fetcher, CrossRef: crossref, Defaults: defaults}
}

// List handles GET /animelist?username=<name>&status=<status>.
func (h *AnimelistHandler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status == "" {
		status = defaultStatus
	}

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" && h.Defaults != nil {
		username = h.Defaults.DefaultUsername()
	}
	if username == "" {
		writeError(w, http.StatusBadRequest, "username query param or a configured default username is required")
		return
	}

	entries, err := h.Fetcher.FetchAnimelist(username, status)
	if err != nil {
		slog.Error("animelist fetch failed", "username", username, "status", status, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	refs, err := h.CrossRef.LoadMap()
	if err != nil {
		slog.Error("anime ids load failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := enrich.Merge(entries, refs)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (h *AnimelistHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
