package store

import "github.com/anyclass/anyclass/pkg/models"

// Window applies limit and skip to an already filtered, already ordered
// record list. A non-positive limit means unbounded; a negative skip means
// none. Engines that cannot push the window into their backend share this
// so the edge behavior stays identical.
func Window(recs []*models.Record, limit, skip int) []*models.Record {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(recs) {
		return []*models.Record{}
	}
	recs = recs[skip:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}
