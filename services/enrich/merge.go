package enrich

import (
	"anibridge/models"
	"anibridge/services/animeids"
	"anibridge/services/mal"
)

// Merge joins animelist entries against the cross-reference map, preserving
// input order. Entries whose node carries no id at all are dropped; entries
// without a cross-reference match still appear with their base fields.
func Merge(entries []mal.ListEntry, refs map[int]animeids.CrossRef) []models.AnimeEntry {
	out := make([]models.AnimeEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Node.ID == nil {
			continue
		}

		item := models.AnimeEntry{
			Title: entry.Node.Title,
			MALID: *entry.Node.ID,
		}

		if ref, ok := refs[item.MALID]; ok {
			if ref.TVDBID != nil && ref.TVDBID != "" {
				item.ID = ref.TVDBID
			}
			if ref.IMDBID != "" {
				item.IMDBID = ref.IMDBID
			}
		}

		out = append(out, item)
	}
	return out
}
