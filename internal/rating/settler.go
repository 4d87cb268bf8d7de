package rating

import (
    "context"
    "time"

    "go.uber.org/zap"

    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/battle"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/obslog"
)

// PlayerRating is one user's rating state for a distance class. Game count is
// tracked per distance class, matching the per-class rating buckets.
type PlayerRating struct {
    UserID        string
    DistanceClass string
    Rating        int
    Games         int
}

// BattleResult is the immutable per-participant settlement record.
type BattleResult struct {
    SessionID     string
    UserID        string
    DistanceClass string
    Rank          int
    RatingBefore  int
    RatingAfter   int
    RunRecordID   string
    CreatedAt     time.Time
}

// Repository persists ratings and results. SaveSettlement must apply all
// records and rating updates atomically or none at all.
type Repository interface {
    GetRating(ctx context.Context, userID, distanceClass string) (*PlayerRating, error)
    SaveSettlement(ctx context.Context, results []*BattleResult) error
    GetResult(ctx context.Context, sessionID, userID string) (*BattleResult, error)
}

// Settler converts a FINISHED session's standings into rating deltas.
// Implements battle.Settler.
type Settler struct {
    repo Repository
}

func NewSettler(repo Repository) *Settler { return &Settler{repo: repo} }

// Settle computes and persists deltas for every finisher. Quitters are
// excluded entirely and shrink the field. Fields of size 0 or 1 settle with
// no rating change and no result records.
func (s *Settler) Settle(ctx context.Context, sess *battle.Session) error {
    finishers := sess.Finishers()
    n := len(finishers)
    if n < 2 {
        obslog.L().Info("settle_skip_small_field", zap.String("session_id", sess.ID), zap.Int("finishers", n))
        return nil
    }

    class := string(sess.DistanceClass)

    // 모든 델타는 변이 전의 일관된 스냅샷에서 계산한다(순서 의존 방지).
    before := make([]*PlayerRating, n)
    for i, p := range finishers {
        r, err := s.repo.GetRating(ctx, p.UserID, class)
        if err != nil { return err }
        if r == nil {
            r = &PlayerRating{UserID: p.UserID, DistanceClass: class, Rating: BaselineRating}
        }
        before[i] = r
    }

    now := time.Now()
    results := make([]*BattleResult, 0, n)
    for i, p := range finishers {
        rank := i + 1
        opponents := make([]int, 0, n-1)
        for j := range before {
            if j == i { continue }
            opponents = append(opponents, before[j].Rating)
        }
        actual := ActualScore(rank, n)
        expected := ExpectedScore(before[i].Rating, opponents)
        delta := Delta(KFactor(before[i].Games), actual, expected)

        // guard clauses: the winner never gains nothing, last never loses nothing
        if rank == 1 && delta <= 0 { delta = 1 }
        if rank == n && delta >= 0 { delta = -1 }

        results = append(results, &BattleResult{
            SessionID:     sess.ID,
            UserID:        p.UserID,
            DistanceClass: class,
            Rank:          rank,
            RatingBefore:  before[i].Rating,
            RatingAfter:   before[i].Rating + delta,
            RunRecordID:   p.RunRecordID,
            CreatedAt:     now,
        })
    }

    if err := s.repo.SaveSettlement(ctx, results); err != nil { return err }
    for _, r := range results {
        obslog.L().Info("rating_settled",
            zap.String("session_id", r.SessionID),
            zap.String("user_id", r.UserID),
            zap.String("distance_class", r.DistanceClass),
            zap.Int("rank", r.Rank),
            zap.Int("before", r.RatingBefore),
            zap.Int("after", r.RatingAfter),
        )
    }
    return nil
}

// Result fetches the settled outcome for one participant of a session.
func (s *Settler) Result(ctx context.Context, sessionID, userID string) (*BattleResult, error) {
    return s.repo.GetResult(ctx, sessionID, userID)
}
