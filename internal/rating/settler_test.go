package rating

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/battle"
)

func finishedSession(t *testing.T, class battle.DistanceClass, order ...string) *battle.Session {
    t.Helper()
    base := time.Now()
    sess := &battle.Session{
        ID:            "battle-test",
        State:         battle.StateFinished,
        DistanceClass: class,
    }
    for i, uid := range order {
        sess.Participants = append(sess.Participants, &battle.Participant{
            UserID:     uid,
            Name:       uid,
            Finished:   true,
            TerminalAt: base.Add(time.Duration(i) * time.Second),
        })
    }
    return sess
}

func seedRating(t *testing.T, repo Repository, userID, class string, rating, games int) {
    t.Helper()
    m, ok := repo.(*memrepo)
    if !ok { t.Fatalf("repo is not a memrepo") }
    m.ratings[userID+"|"+class] = &PlayerRating{UserID: userID, DistanceClass: class, Rating: rating, Games: games}
}

func mustResult(t *testing.T, repo Repository, sessionID, userID string) *BattleResult {
    t.Helper()
    r, err := repo.GetResult(context.Background(), sessionID, userID)
    if err != nil { t.Fatalf("GetResult(%s): %v", userID, err) }
    if r == nil { t.Fatalf("no result for %s", userID) }
    return r
}

func TestSettleEqualField(t *testing.T) {
    repo := NewMemoryRepository()
    s := NewSettler(repo)
    sess := finishedSession(t, battle.ClassMedium, "u1", "u2", "u3")

    if err := s.Settle(context.Background(), sess); err != nil {
        t.Fatalf("Settle: %v", err)
    }

    r1 := mustResult(t, repo, sess.ID, "u1")
    r2 := mustResult(t, repo, sess.ID, "u2")
    r3 := mustResult(t, repo, sess.ID, "u3")

    // all unrated → baseline 1500; deltas must strictly follow the standings
    if r1.RatingBefore != BaselineRating {
        t.Fatalf("expected lazy baseline %d, got %d", BaselineRating, r1.RatingBefore)
    }
    d1, d2, d3 := r1.RatingAfter-r1.RatingBefore, r2.RatingAfter-r2.RatingBefore, r3.RatingAfter-r3.RatingBefore
    if !(d1 > d2 && d2 > d3) {
        t.Fatalf("deltas must be strictly ordered by rank: %d, %d, %d", d1, d2, d3)
    }
    if d1 <= 0 { t.Fatalf("winner must gain, got %d", d1) }
    if d3 >= 0 { t.Fatalf("last place must lose, got %d", d3) }
    if r1.Rank != 1 || r2.Rank != 2 || r3.Rank != 3 {
        t.Fatalf("ranks wrong: %d %d %d", r1.Rank, r2.Rank, r3.Rank)
    }

    // settlement counts one game per participant in the class
    rt, err := repo.GetRating(context.Background(), "u1", string(battle.ClassMedium))
    if err != nil { t.Fatalf("GetRating: %v", err) }
    if rt.Games != 1 { t.Fatalf("expected 1 game, got %d", rt.Games) }
    if rt.Rating != r1.RatingAfter { t.Fatalf("stored rating %d != result after %d", rt.Rating, r1.RatingAfter) }
}

func TestSettleHigherRatedWinnerGainsLess(t *testing.T) {
    ctx := context.Background()
    class := string(battle.ClassShort)

    // favorite wins
    repoA := NewMemoryRepository()
    seedRating(t, repoA, "fav", class, 1800, 50)
    seedRating(t, repoA, "a", class, 1000, 50)
    seedRating(t, repoA, "b", class, 1000, 50)
    if err := NewSettler(repoA).Settle(ctx, finishedSession(t, battle.ClassShort, "fav", "a", "b")); err != nil {
        t.Fatalf("Settle favorite: %v", err)
    }
    favRes := mustResult(t, repoA, "battle-test", "fav")
    favGain := favRes.RatingAfter - favRes.RatingBefore

    // underdog wins the mirror matchup
    repoB := NewMemoryRepository()
    seedRating(t, repoB, "dog", class, 1000, 50)
    seedRating(t, repoB, "a", class, 1800, 50)
    seedRating(t, repoB, "b", class, 1800, 50)
    if err := NewSettler(repoB).Settle(ctx, finishedSession(t, battle.ClassShort, "dog", "a", "b")); err != nil {
        t.Fatalf("Settle underdog: %v", err)
    }
    dogRes := mustResult(t, repoB, "battle-test", "dog")
    dogGain := dogRes.RatingAfter - dogRes.RatingBefore

    if favGain <= 0 { t.Fatalf("winner guard: favorite must still gain, got %d", favGain) }
    if dogGain <= favGain {
        t.Fatalf("underdog win must pay more than favorite win: %d vs %d", dogGain, favGain)
    }
}

func TestSettleSmallFieldNoop(t *testing.T) {
    repo := NewMemoryRepository()
    s := NewSettler(repo)
    sess := finishedSession(t, battle.ClassLong, "solo")

    if err := s.Settle(context.Background(), sess); err != nil {
        t.Fatalf("Settle: %v", err)
    }
    if r, err := repo.GetResult(context.Background(), sess.ID, "solo"); err != nil || r != nil {
        t.Fatalf("single finisher must not produce a result, got %+v err=%v", r, err)
    }
    if rt, err := repo.GetRating(context.Background(), "solo", string(battle.ClassLong)); err != nil || rt != nil {
        t.Fatalf("single finisher must not touch ratings, got %+v err=%v", rt, err)
    }
}

func TestSettleAtomicFailure(t *testing.T) {
    repo := NewMemoryRepository()
    m := repo.(*memrepo)
    m.failNext = errors.New("db down")

    s := NewSettler(repo)
    sess := finishedSession(t, battle.ClassMedium, "u1", "u2")
    if err := s.Settle(context.Background(), sess); err == nil {
        t.Fatalf("expected settlement failure")
    }

    // nothing may be half-applied
    if r, _ := repo.GetResult(context.Background(), sess.ID, "u1"); r != nil {
        t.Fatalf("failed settlement left a result behind: %+v", r)
    }
    if rt, _ := repo.GetRating(context.Background(), "u1", string(battle.ClassMedium)); rt != nil {
        t.Fatalf("failed settlement mutated ratings: %+v", rt)
    }

    // a retry against a healthy repository succeeds
    if err := s.Settle(context.Background(), sess); err != nil {
        t.Fatalf("retry Settle: %v", err)
    }
    mustResult(t, repo, sess.ID, "u1")
}
