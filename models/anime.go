package models

// AnimeEntry is one row of the enriched animelist response. ID carries the
// TVDB identifier in whatever JSON type the mapping document used; it and the
// IMDB id only appear when a cross-reference supplied them.
type AnimeEntry struct {
	Title  string `json:"title"`
	MALID  int    `json:"malId"`
	ID     any    `json:"id,omitempty"`
	IMDBID string `json:"imdb_id,omitempty"`
}
