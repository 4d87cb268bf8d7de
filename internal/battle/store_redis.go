package battle

import (
    "context"
    "encoding/json"
    "fmt"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 24 * time.Hour

// Store keeps session state as JSON in Redis with a per-user index so a
// reconnecting client can find its active session.
type Store struct {
    rdb *redis.Client
    ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
    if ttl <= 0 { ttl = defaultSessionTTL }
    return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) keySession(id string) string { return "battle:session:" + strings.TrimSpace(id) }
func (s *Store) keyUserIdx(user string) string {
    return "battle:index:user:" + strings.TrimSpace(user)
}

func (s *Store) Save(ctx context.Context, sess *Session) error {
    raw, err := json.Marshal(sess)
    if err != nil { return err }
    return s.rdb.Set(ctx, s.keySession(sess.ID), raw, s.ttl).Err()
}

func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
    raw, err := s.rdb.Get(ctx, s.keySession(id)).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    var sess Session
    if err := json.Unmarshal(raw, &sess); err != nil { return nil, err }
    return &sess, nil
}

// Delete removes a session and its user index entries once results are consumed.
func (s *Store) Delete(ctx context.Context, sess *Session) error {
    if sess == nil { return nil }
    for _, p := range sess.Participants {
        _ = s.rdb.SRem(ctx, s.keyUserIdx(p.UserID), sess.ID).Err()
    }
    return s.rdb.Del(ctx, s.keySession(sess.ID)).Err()
}

// IndexParticipants records sessionID under each participant's index key.
// 인덱스 키 TTL은 세션 TTL과 동일하게 갱신하여 누적을 방지한다.
func (s *Store) IndexParticipants(ctx context.Context, sessionID string, userIDs []string) error {
    for _, uid := range userIDs {
        if strings.TrimSpace(uid) == "" { continue }
        key := s.keyUserIdx(uid)
        if err := s.rdb.SAdd(ctx, key, sessionID).Err(); err != nil { return err }
        _ = s.rdb.Expire(ctx, key, s.ttl).Err()
    }
    return nil
}

// SessionIDsByUser returns the ids indexed for a user (stale entries possible;
// callers load and check state).
func (s *Store) SessionIDsByUser(ctx context.Context, userID string) ([]string, error) {
    return s.rdb.SMembers(ctx, s.keyUserIdx(userID)).Result()
}

// OpenRedis dials a redis client from a redis:// URL and verifies connectivity.
func OpenRedis(rawURL string) (*redis.Client, error) {
    if strings.TrimSpace(rawURL) == "" {
        return nil, fmt.Errorf("REDIS_URL required")
    }
    opts, err := parseRedisURL(rawURL)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(context.Background()).Err(); err != nil {
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(raw)
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" {
        return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
    }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" {
        if n, err := strconv.Atoi(p); err == nil { db = n }
    }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
