package ghost

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "time"

    _ "github.com/lib/pq"
)

// PostgresLoader reads reference runs from the run-history store.
//
// Expected schema:
//
//	run_records(id, total_distance_m, total_time_sec, ...)
//	run_checkpoints(run_id, distance_m, elapsed_sec, pace_sec_km)
type PostgresLoader struct {
    db *sql.DB
}

func NewPostgresLoader(databaseURL string) (*PostgresLoader, error) {
    if strings.TrimSpace(databaseURL) == "" {
        return nil, fmt.Errorf("DATABASE_URL is required")
    }
    db, err := sql.Open("postgres", databaseURL)
    if err != nil { return nil, err }
    db.SetMaxOpenConns(8)
    db.SetMaxIdleConns(4)
    db.SetConnMaxLifetime(30 * time.Minute)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil { return nil, err }
    return &PostgresLoader{db: db}, nil
}

func (l *PostgresLoader) Close() error {
    if l == nil || l.db == nil { return nil }
    return l.db.Close()
}

func (l *PostgresLoader) LoadReference(ctx context.Context, runID string) (*Reference, error) {
    ref := &Reference{RunID: runID}
    q := `SELECT total_distance_m, total_time_sec FROM run_records WHERE id = $1`
    err := l.db.QueryRowContext(ctx, q, runID).Scan(&ref.TotalDistanceM, &ref.TotalTimeSec)
    if err == sql.ErrNoRows { return nil, nil }
    if err != nil { return nil, err }

    rows, err := l.db.QueryContext(ctx,
        `SELECT distance_m, elapsed_sec, COALESCE(pace_sec_km, 0)
         FROM run_checkpoints WHERE run_id = $1 ORDER BY distance_m ASC`, runID)
    if err != nil { return nil, err }
    defer rows.Close()
    for rows.Next() {
        var cp Checkpoint
        if err := rows.Scan(&cp.DistanceM, &cp.ElapsedSec, &cp.PaceSecKm); err != nil { return nil, err }
        ref.Checkpoints = append(ref.Checkpoints, cp)
    }
    if err := rows.Err(); err != nil { return nil, err }
    return ref, nil
}
