package rating

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "time"

    _ "github.com/lib/pq"
)

// PostgresRepository stores ratings and battle results.
//
// Expected schema:
//
//	player_ratings(user_id, distance_class, rating, games, updated_at)
//	  PRIMARY KEY (user_id, distance_class)
//	battle_results(session_id, user_id, distance_class, rank, rating_before,
//	  rating_after, run_record_id, created_at)
//	  PRIMARY KEY (session_id, user_id)
type PostgresRepository struct {
    db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
    if strings.TrimSpace(databaseURL) == "" {
        return nil, fmt.Errorf("DATABASE_URL is required")
    }
    db, err := sql.Open("postgres", databaseURL)
    if err != nil { return nil, err }
    db.SetMaxOpenConns(16)
    db.SetMaxIdleConns(8)
    db.SetConnMaxLifetime(30 * time.Minute)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil { return nil, err }
    return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
    if r == nil || r.db == nil { return nil }
    return r.db.Close()
}

func (r *PostgresRepository) GetRating(ctx context.Context, userID, distanceClass string) (*PlayerRating, error) {
    q := `SELECT rating, games FROM player_ratings WHERE user_id = $1 AND distance_class = $2`
    var p PlayerRating
    p.UserID, p.DistanceClass = userID, distanceClass
    err := r.db.QueryRowContext(ctx, q, userID, distanceClass).Scan(&p.Rating, &p.Games)
    if err == sql.ErrNoRows { return nil, nil }
    if err != nil { return nil, err }
    return &p, nil
}

// SaveSettlement inserts every result record and upserts every rating inside
// one transaction. A half-applied settlement corrupts rating history, so any
// failure rolls the whole batch back.
func (r *PostgresRepository) SaveSettlement(ctx context.Context, results []*BattleResult) error {
    if len(results) == 0 { return nil }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()

    insResult := `INSERT INTO battle_results (
        session_id, user_id, distance_class, rank, rating_before, rating_after,
        run_record_id, created_at
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
    upsRating := `INSERT INTO player_ratings (user_id, distance_class, rating, games, updated_at)
      VALUES ($1,$2,$3,1,$4)
      ON CONFLICT (user_id, distance_class) DO UPDATE SET
        rating = EXCLUDED.rating,
        games = player_ratings.games + 1,
        updated_at = EXCLUDED.updated_at`

    for _, res := range results {
        if _, err := tx.ExecContext(ctx, insResult,
            res.SessionID, res.UserID, res.DistanceClass, res.Rank,
            res.RatingBefore, res.RatingAfter, nullable(res.RunRecordID), res.CreatedAt,
        ); err != nil {
            return fmt.Errorf("insert battle result: %w", err)
        }
        if _, err := tx.ExecContext(ctx, upsRating,
            res.UserID, res.DistanceClass, res.RatingAfter, res.CreatedAt,
        ); err != nil {
            return fmt.Errorf("upsert rating: %w", err)
        }
    }
    return tx.Commit()
}

func (r *PostgresRepository) GetResult(ctx context.Context, sessionID, userID string) (*BattleResult, error) {
    q := `SELECT session_id, user_id, distance_class, rank, rating_before, rating_after,
        COALESCE(run_record_id, ''), created_at
      FROM battle_results WHERE session_id = $1 AND user_id = $2`
    var res BattleResult
    err := r.db.QueryRowContext(ctx, q, sessionID, userID).Scan(
        &res.SessionID, &res.UserID, &res.DistanceClass, &res.Rank,
        &res.RatingBefore, &res.RatingAfter, &res.RunRecordID, &res.CreatedAt,
    )
    if err == sql.ErrNoRows { return nil, nil }
    if err != nil { return nil, err }
    return &res, nil
}

func nullable(s string) any {
    if strings.TrimSpace(s) == "" { return nil }
    return s
}
