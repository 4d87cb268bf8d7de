package battle

import (
	"sort"

	"github.com/RunRun-labs/RunRun-Backend-sub001/pkg/battledto"
)

// computeRankings derives the total order for a session snapshot.
// Ordering key: distance desc; ties broken by earliest latest-update timestamp
// (first to reach the distance ranks higher), then user id so re-queries of the
// same snapshot always return an identical order.
func computeRankings(s *Session) []battledto.RankingEntry {
	ps := append([]*Participant(nil), s.Participants...)
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Distance != ps[j].Distance {
			return ps[i].Distance > ps[j].Distance
		}
		ti, tj := ps[i].DistanceAt, ps[j].DistanceAt
		if !ti.Equal(tj) {
			// zero timestamp means no update yet; those sort last among ties
			if ti.IsZero() {
				return false
			}
			if tj.IsZero() {
				return true
			}
			return ti.Before(tj)
		}
		return ps[i].UserID < ps[j].UserID
	})

	out := make([]battledto.RankingEntry, 0, len(ps))
	for i, p := range ps {
		out = append(out, battledto.RankingEntry{
			UserID:   p.UserID,
			Name:     p.Name,
			Distance: p.Distance,
			Rank:     i + 1,
		})
	}
	return out
}
