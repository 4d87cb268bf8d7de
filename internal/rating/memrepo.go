package rating

import (
	"context"
	"sync"
)

// memrepo is a development/test repository used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	ratings map[string]*PlayerRating // userID|class
	results map[string]*BattleResult // sessionID|userID

	failNext error // test hook: next SaveSettlement fails atomically
}

func NewMemoryRepository() Repository {
	return &memrepo{
		ratings: make(map[string]*PlayerRating),
		results: make(map[string]*BattleResult),
	}
}

func (m *memrepo) GetRating(ctx context.Context, userID, distanceClass string) (*PlayerRating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.ratings[userID+"|"+distanceClass]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memrepo) SaveSettlement(ctx context.Context, results []*BattleResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	for _, res := range results {
		cp := *res
		m.results[res.SessionID+"|"+res.UserID] = &cp

		key := res.UserID + "|" + res.DistanceClass
		if r, ok := m.ratings[key]; ok {
			r.Rating = res.RatingAfter
			r.Games++
		} else {
			m.ratings[key] = &PlayerRating{
				UserID:        res.UserID,
				DistanceClass: res.DistanceClass,
				Rating:        res.RatingAfter,
				Games:         1,
			}
		}
	}
	return nil
}

func (m *memrepo) GetResult(ctx context.Context, sessionID, userID string) (*BattleResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if res, ok := m.results[sessionID+"|"+userID]; ok {
		cp := *res
		return &cp, nil
	}
	return nil, nil
}
