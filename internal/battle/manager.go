package battle

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sort"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/msgcat"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/obslog"
    "github.com/RunRun-labs/RunRun-Backend-sub001/pkg/battledto"
)

// Publisher fans a frame out to every subscriber of a session topic.
// Dispatch must be non-blocking relative to the caller.
type Publisher interface {
    Publish(ctx context.Context, sessionID string, frame *battledto.Frame) error
}

// Settler converts a FINISHED session into persisted rating changes.
// Invoked exactly once per session, by the caller that performed the
// terminal transition.
type Settler interface {
    Settle(ctx context.Context, sess *Session) error
}

// ParticipantSeed identifies one runner at session creation time.
type ParticipantSeed struct {
    UserID string
    Name   string
}

const defaultStartDelay = 3 * time.Second

// Manager owns battle session lifecycle, readiness gating, live ranking and
// the terminal transition that triggers settlement. All mutations of one
// session are serialized through optimistic WATCH transactions on its key, so
// the all-ready / all-terminal checks always observe a consistent snapshot.
type Manager struct {
    rdb     *redis.Client
    store   *Store
    pub     Publisher
    settler Settler
    cat     *msgcat.Catalog

    startDelay time.Duration
}

func NewManager(rdb *redis.Client, pub Publisher) *Manager {
    return &Manager{
        rdb:        rdb,
        store:      NewStore(rdb, defaultSessionTTL),
        pub:        pub,
        startDelay: defaultStartDelay,
    }
}

// SetStartDelay overrides the auto-start delay after the field goes all-ready.
func (m *Manager) SetStartDelay(d time.Duration) {
    if m != nil && d >= 0 { m.startDelay = d }
}

// SetSessionTTL overrides the Redis TTL for session state.
func (m *Manager) SetSessionTTL(ttl time.Duration) {
    if m != nil && ttl > 0 { m.store = NewStore(m.rdb, ttl) }
}

// AttachSettler wires the rating settlement engine.
func (m *Manager) AttachSettler(s Settler) {
    if m != nil { m.settler = s }
}

// AttachMessages wires the catalog used for human-readable broadcast notices.
func (m *Manager) AttachMessages(cat *msgcat.Catalog) {
    if m != nil { m.cat = cat }
}

// notice renders a catalog template; without a catalog frames carry no text.
func (m *Manager) notice(key string, data any) string {
    if m.cat == nil { return "" }
    s, err := m.cat.Render(key, data)
    if err != nil { return "" }
    return s
}

// CreateSession registers a WAITING session for a confirmed match.
func (m *Manager) CreateSession(ctx context.Context, seeds []ParticipantSeed, class DistanceClass) (*Session, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("battle manager not initialized") }
    if len(seeds) < 2 { return nil, ErrInvalidArgs }
    seen := make(map[string]bool, len(seeds))
    parts := make([]*Participant, 0, len(seeds))
    ids := make([]string, 0, len(seeds))
    for _, sd := range seeds {
        if sd.UserID == "" || seen[sd.UserID] { return nil, ErrInvalidArgs }
        seen[sd.UserID] = true
        parts = append(parts, &Participant{UserID: sd.UserID, Name: sd.Name})
        ids = append(ids, sd.UserID)
    }

    now := time.Now()
    sess := &Session{
        ID:            fmt.Sprintf("battle-%s", uuid.NewString()),
        DistanceClass: class,
        State:         StateWaiting,
        Participants:  parts,
        CreatedAt:     now,
        UpdatedAt:     now,
    }
    if err := m.store.Save(ctx, sess); err != nil { return nil, err }
    if err := m.store.IndexParticipants(ctx, sess.ID, ids); err != nil { return nil, err }
    obslog.L().Info("battle_session_create",
        zap.String("session_id", sess.ID),
        zap.String("distance_class", string(class)),
        zap.Int("participants", len(parts)),
    )
    return sess, nil
}

// Get loads a session or returns ErrNotFound.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
    sess, err := m.store.Load(ctx, sessionID)
    if err != nil { return nil, err }
    if sess == nil { return nil, ErrNotFound }
    return sess, nil
}

// SessionByUser returns the user's most recently updated non-finished session.
func (m *Manager) SessionByUser(ctx context.Context, userID string) (*Session, error) {
    ids, err := m.store.SessionIDsByUser(ctx, userID)
    if err != nil { return nil, err }
    var list []*Session
    for _, id := range ids {
        s, serr := m.store.Load(ctx, id)
        if serr == nil && s != nil && s.State != StateFinished {
            list = append(list, s)
        }
    }
    if len(list) == 0 { return nil, nil }
    sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
    return list[0], nil
}

// ToggleReady records a readiness flag and reports whether the whole field is
// ready. When it is, the session auto-starts after the configured delay.
func (m *Manager) ToggleReady(ctx context.Context, sessionID, userID string, isReady bool) (bool, error) {
    sess, err := m.mutate(ctx, sessionID, func(cur *Session) error {
        if cur.State != StateWaiting { return ErrInvalidState }
        p := cur.Participant(userID)
        if p == nil { return ErrForbidden }
        if p.Quit { return ErrInvalidState }
        p.Ready = isReady
        return nil
    })
    if err != nil { return false, err }

    allReady := sess.AllReady()
    obslog.L().Info("battle_ready",
        zap.String("session_id", sessionID),
        zap.String("user_id", userID),
        zap.Bool("is_ready", isReady),
        zap.Bool("all_ready", allReady),
    )
    var msg string
    if allReady {
        msg = m.notice("battle.notice.all_ready", nil)
    }
    m.publish(ctx, sessionID, &battledto.Frame{
        Type:      battledto.TypeBattleReady,
        SessionID: sessionID,
        UserID:    userID,
        IsReady:   battledto.Bool(isReady),
        AllReady:  battledto.Bool(allReady),
        Message:   msg,
        Timestamp: time.Now().UnixMilli(),
    })

    if allReady {
        // 전원 준비 완료: 지연 후 자동 시작. 누군가 준비를 해제하면
        // StartBattle의 상태 검증이 시작을 거부한다.
        time.AfterFunc(m.startDelay, func() {
            sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
            defer cancel()
            if _, err := m.StartBattle(sctx, sessionID); err != nil && !errors.Is(err, ErrInvalidState) {
                obslog.L().Error("battle_autostart_error", zap.String("session_id", sessionID), zap.Error(err))
            }
        })
    }
    return allReady, nil
}

// StartBattle transitions WAITING → IN_PROGRESS. Requires the field all-ready.
// Side effect: live distances reset to zero and the start is timestamped.
func (m *Manager) StartBattle(ctx context.Context, sessionID string) (*Session, error) {
    sess, err := m.mutate(ctx, sessionID, func(cur *Session) error {
        if cur.State != StateWaiting { return ErrInvalidState }
        if !cur.AllReady() { return ErrInvalidState }
        cur.State = StateInProgress
        cur.StartedAt = time.Now()
        for _, p := range cur.Participants {
            p.Distance = 0
            p.DistanceAt = time.Time{}
        }
        return nil
    })
    if err != nil { return nil, err }

    obslog.L().Info("battle_start", zap.String("session_id", sessionID))
    m.publish(ctx, sessionID, &battledto.Frame{
        Type:      battledto.TypeBattleStart,
        SessionID: sessionID,
        Message:   m.notice("battle.notice.start", nil),
        Timestamp: time.Now().UnixMilli(),
    })
    // initial zero-distance snapshot so every client renders the same board
    m.publish(ctx, sessionID, &battledto.Frame{
        Type:      battledto.TypeBattleUpdate,
        SessionID: sessionID,
        Rankings:  computeRankings(sess),
        Seq:       sess.Seq,
        Timestamp: time.Now().UnixMilli(),
    })
    return sess, nil
}

// UpdateDistance records a participant's latest cumulative distance and
// rebroadcasts the full ranking list to all session subscribers. Exactly one
// broadcast per successful call.
func (m *Manager) UpdateDistance(ctx context.Context, sessionID, userID string, distance float64, sample *battledto.GpsSample) ([]battledto.RankingEntry, error) {
    if distance < 0 { return nil, ErrInvalidArgs }
    sess, err := m.mutate(ctx, sessionID, func(cur *Session) error {
        if cur.State != StateInProgress { return ErrInvalidState }
        p := cur.Participant(userID)
        if p == nil { return ErrForbidden }
        if p.Terminal() { return ErrInvalidState }
        p.Distance = distance
        p.DistanceAt = time.Now()
        return nil
    })
    if err != nil { return nil, err }

    rankings := computeRankings(sess)
    m.publish(ctx, sessionID, &battledto.Frame{
        Type:      battledto.TypeBattleUpdate,
        SessionID: sessionID,
        Rankings:  rankings,
        Seq:       sess.Seq,
        Timestamp: time.Now().UnixMilli(),
    })
    return rankings, nil
}

// Rankings returns the current total order for a session.
func (m *Manager) Rankings(ctx context.Context, sessionID string) ([]battledto.RankingEntry, error) {
    sess, err := m.Get(ctx, sessionID)
    if err != nil { return nil, err }
    return computeRankings(sess), nil
}

// FinishUser marks a participant as a finisher. When the last non-quit
// participant goes terminal the session transitions to FINISHED and is settled.
func (m *Manager) FinishUser(ctx context.Context, sessionID, userID string) error {
    return m.terminal(ctx, sessionID, userID, false)
}

// QuitBattle marks a participant as quit. Quitting cancels only that runner's
// participation; the quitter is excluded from settlement but still counts
// toward "everyone accounted for".
func (m *Manager) QuitBattle(ctx context.Context, sessionID, userID string) error {
    return m.terminal(ctx, sessionID, userID, true)
}

var errAlreadyTerminal = errf("participant already terminal")

func (m *Manager) terminal(ctx context.Context, sessionID, userID string, quit bool) error {
    var sessionDone bool
    sess, err := m.mutate(ctx, sessionID, func(cur *Session) error {
        sessionDone = false // reset on WATCH retry
        if cur.State == StateFinished { return errAlreadyTerminal }
        p := cur.Participant(userID)
        if p == nil { return ErrForbidden }
        if p.Terminal() { return errAlreadyTerminal }
        if !quit && cur.State != StateInProgress { return ErrInvalidState }
        if quit {
            p.Quit = true
        } else {
            p.Finished = true
        }
        p.TerminalAt = time.Now()
        if cur.AllTerminal() {
            // 마지막 이탈/완주를 관측한 커밋만 이 전이를 수행한다.
            cur.State = StateFinished
            cur.FinishedAt = time.Now()
            sessionDone = true
        }
        return nil
    })
    if errors.Is(err, errAlreadyTerminal) {
        return nil // idempotent no-op
    }
    if err != nil { return err }

    obslog.L().Info("battle_terminal",
        zap.String("session_id", sessionID),
        zap.String("user_id", userID),
        zap.Bool("quit", quit),
        zap.Bool("session_done", sessionDone),
    )
    noticeKey := "battle.notice.finish"
    if quit { noticeKey = "battle.notice.quit" }
    name := userID
    if p := sess.Participant(userID); p != nil && p.Name != "" { name = p.Name }
    m.publish(ctx, sessionID, &battledto.Frame{
        Type:      battledto.TypeBattleUpdate,
        SessionID: sessionID,
        UserID:    userID,
        Rankings:  computeRankings(sess),
        Seq:       sess.Seq,
        Message:   m.notice(noticeKey, map[string]string{"Name": name}),
        Timestamp: time.Now().UnixMilli(),
    })

    if sessionDone {
        m.publish(ctx, sessionID, &battledto.Frame{
            Type:      battledto.TypeBattleEnd,
            SessionID: sessionID,
            Timestamp: time.Now().UnixMilli(),
        })
        if m.settler != nil {
            if serr := m.settler.Settle(ctx, sess); serr != nil {
                // all-or-nothing: 실패 시 어떤 레이팅도 반영되지 않은 상태
                obslog.L().Error("battle_settle_error", zap.String("session_id", sessionID), zap.Error(serr))
                return serr
            }
            obslog.L().Info("battle_settle", zap.String("session_id", sessionID), zap.Int("finishers", len(sess.Finishers())))
        }
    }
    return nil
}

// mutate applies fn to the session under an optimistic WATCH transaction and
// persists the result. Concurrent writers serialize through TxFailedErr retry.
func (m *Manager) mutate(ctx context.Context, sessionID string, fn func(*Session) error) (*Session, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("battle manager not initialized") }
    key := m.store.keySession(sessionID)
    var out *Session
    for attempt := 0; attempt < 8; attempt++ {
        err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
            raw, err := tx.Get(ctx, key).Bytes()
            if err == redis.Nil { return ErrNotFound }
            if err != nil { return err }
            var cur Session
            if jerr := json.Unmarshal(raw, &cur); jerr != nil { return jerr }
            if ferr := fn(&cur); ferr != nil { return ferr }
            cur.Seq++
            cur.UpdatedAt = time.Now()
            newRaw, merr := json.Marshal(&cur)
            if merr != nil { return merr }
            pipe := tx.TxPipeline()
            pipe.Set(ctx, key, newRaw, m.store.ttl)
            if _, err := pipe.Exec(ctx); err != nil { return err }
            out = &cur
            return nil
        }, key)
        if errors.Is(err, redis.TxFailedErr) { continue }
        if err != nil { return nil, err }
        return out, nil
    }
    return nil, fmt.Errorf("session %s: transaction contention", sessionID)
}

func (m *Manager) publish(ctx context.Context, sessionID string, frame *battledto.Frame) {
    if m.pub == nil { return }
    if err := m.pub.Publish(ctx, sessionID, frame); err != nil {
        obslog.L().Warn("battle_publish_error",
            zap.String("session_id", sessionID),
            zap.String("type", string(frame.Type)),
            zap.Error(err),
        )
    }
}
