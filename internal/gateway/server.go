package gateway

import (
    "context"
    "encoding/json"
    "math"
    "net/http"
    "strings"
    "time"

    "go.uber.org/zap"
    "nhooyr.io/websocket"
    "nhooyr.io/websocket/wsjson"

    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/battle"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/ghost"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/msgcat"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/obslog"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/rating"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/relay"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/userapi"
    "github.com/RunRun-labs/RunRun-Backend-sub001/pkg/battledto"
)

const writeTimeout = 5 * time.Second

// Server terminates client connections and routes message-oriented battle
// operations onto the coordinator. Every handler failure becomes a structured
// ERROR notice on the session topic — real-time clients are told why an
// update was rejected instead of seeing it vanish.
type Server struct {
    battles *battle.Manager
    settler *rating.Settler
    hub     *relay.Hub
    pub     relay.Publisher
    ghosts  *ghost.Cache
    users   *userapi.Client // optional
    cat     *msgcat.Catalog

    maxParticipants int
}

func NewServer(battles *battle.Manager, settler *rating.Settler, hub *relay.Hub, pub relay.Publisher, ghosts *ghost.Cache, users *userapi.Client, cat *msgcat.Catalog, maxParticipants int) *Server {
    if maxParticipants < 2 { maxParticipants = 4 }
    return &Server{
        battles: battles, settler: settler,
        hub: hub, pub: pub,
        ghosts: ghosts, users: users, cat: cat,
        maxParticipants: maxParticipants,
    }
}

// Routes registers the gateway endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
    mux.HandleFunc("/battle/ws", s.handleWS)
    mux.HandleFunc("/internal/battles", s.handleCreate)
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
}

type createRequest struct {
    Participants []struct {
        UserID string `json:"userId"`
        Name   string `json:"name,omitempty"`
    } `json:"participants"`
    DistanceClass string `json:"distanceClass"`
}

// handleCreate registers a session when the matchmaking collaborator confirms
// a match.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    var req createRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "bad request", http.StatusBadRequest)
        return
    }
    if len(req.Participants) < 2 || len(req.Participants) > s.maxParticipants {
        http.Error(w, "invalid participant count", http.StatusBadRequest)
        return
    }

    seeds := make([]battle.ParticipantSeed, 0, len(req.Participants))
    for _, p := range req.Participants {
        name := strings.TrimSpace(p.Name)
        if name == "" && s.users != nil {
            if prof, err := s.users.GetProfile(r.Context(), p.UserID); err == nil && prof != nil {
                name = prof.Nickname
            }
        }
        seeds = append(seeds, battle.ParticipantSeed{UserID: strings.TrimSpace(p.UserID), Name: name})
    }

    sess, err := s.battles.CreateSession(r.Context(), seeds, battle.DistanceClass(strings.ToUpper(strings.TrimSpace(req.DistanceClass))))
    if err != nil {
        de := toDomainError(err)
        http.Error(w, de.Code, de.HTTPStatus)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusCreated)
    _ = json.NewEncoder(w).Encode(map[string]string{"sessionId": sess.ID})
}

// handleWS upgrades the connection and pumps frames both ways. The session
// topic subscription and direct request/response replies share one writer
// goroutine; wsjson writes are not safe for concurrent use.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
    sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
    userID := strings.TrimSpace(r.URL.Query().Get("userId"))
    if sessionID == "" || userID == "" {
        http.Error(w, "sessionId and userId required", http.StatusBadRequest)
        return
    }

    c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
        CompressionMode: websocket.CompressionNoContextTakeover,
    })
    if err != nil {
        obslog.L().Warn("ws_accept_error", zap.Error(err))
        return
    }
    defer c.Close(websocket.StatusInternalError, "closing")

    ctx, cancel := context.WithCancel(r.Context())
    defer cancel()

    sub := s.hub.Subscribe(sessionID)
    // LIFO: the subscription closes first, so the idle check below observes
    // this connection as already gone
    defer s.evictGhostIfIdle(sessionID)
    defer sub.Close()

    direct := make(chan *battledto.Reply, 8)
    go s.writeLoop(ctx, c, sub, direct)

    obslog.L().Info("ws_connect", zap.String("session_id", sessionID), zap.String("user_id", userID))
    for {
        var cf battledto.ClientFrame
        if err := wsjson.Read(ctx, c, &cf); err != nil {
            obslog.L().Info("ws_disconnect", zap.String("session_id", sessionID), zap.String("user_id", userID))
            return
        }
        if cf.SessionID == "" { cf.SessionID = sessionID }
        if cf.UserID == "" { cf.UserID = userID }
        s.dispatch(ctx, &cf, direct)
    }
}

func (s *Server) writeLoop(ctx context.Context, c *websocket.Conn, sub *relay.Subscription, direct <-chan *battledto.Reply) {
    var lastSeq int64
    for {
        select {
        case <-ctx.Done():
            return
        case frame, ok := <-sub.C:
            if !ok { return }
            if staleFrame(&lastSeq, frame) { continue }
            if err := s.write(ctx, c, frame); err != nil { return }
        case reply := <-direct:
            if err := s.write(ctx, c, reply); err != nil { return }
        }
    }
}

// staleFrame reports whether a sequenced frame lost the publish race to one
// already delivered on this connection. Unsequenced frames always pass.
func staleFrame(lastSeq *int64, f *battledto.Frame) bool {
    if f.Seq == 0 { return false }
    if f.Seq <= *lastSeq { return true }
    *lastSeq = f.Seq
    return false
}

// evictGhostIfIdle drops the session's ghost reference once no connection is
// subscribed anymore; other live connections keep the reference warm.
func (s *Server) evictGhostIfIdle(sessionID string) {
    if s.hub.SubscriberCount(sessionID) == 0 {
        s.ghosts.Evict(sessionID)
    }
}

func (s *Server) write(ctx context.Context, c *websocket.Conn, v any) error {
    wctx, cancel := context.WithTimeout(ctx, writeTimeout)
    defer cancel()
    return wsjson.Write(wctx, c, v)
}

func (s *Server) dispatch(ctx context.Context, cf *battledto.ClientFrame, direct chan<- *battledto.Reply) {
    var err error
    switch cf.Op {
    case battledto.OpReady:
        _, err = s.battles.ToggleReady(ctx, cf.SessionID, cf.UserID, cf.IsReady)
    case battledto.OpGps:
        _, err = s.battles.UpdateDistance(ctx, cf.SessionID, cf.UserID, cf.TotalDistance, cf.Gps)
    case battledto.OpFinish:
        err = s.battles.FinishUser(ctx, cf.SessionID, cf.UserID)
    case battledto.OpQuit:
        err = s.battles.QuitBattle(ctx, cf.SessionID, cf.UserID)
    case battledto.OpRankings:
        var rankings []battledto.RankingEntry
        if rankings, err = s.battles.Rankings(ctx, cf.SessionID); err == nil {
            s.reply(direct, &battledto.Reply{Op: cf.Op, Rankings: rankings, Ok: true})
        }
    case battledto.OpResult:
        err = s.replyResult(ctx, cf, direct)
    case battledto.OpGhost:
        err = s.replyGhost(ctx, cf, direct)
    default:
        err = battle.ErrInvalidArgs
    }
    if err != nil {
        s.notifyError(ctx, cf.SessionID, cf.Op, err)
    }
}

func (s *Server) replyResult(ctx context.Context, cf *battledto.ClientFrame, direct chan<- *battledto.Reply) error {
    res, err := s.settler.Result(ctx, cf.SessionID, cf.UserID)
    if err != nil { return err }
    if res == nil { return battle.ErrNotFound }
    s.reply(direct, &battledto.Reply{Op: cf.Op, Ok: true, Result: &battledto.BattleResult{
        SessionID:    res.SessionID,
        UserID:       res.UserID,
        Rank:         res.Rank,
        RatingBefore: res.RatingBefore,
        RatingAfter:  res.RatingAfter,
        RunRecordID:  res.RunRecordID,
    }})
    return nil
}

func (s *Server) replyGhost(ctx context.Context, cf *battledto.ClientFrame, direct chan<- *battledto.Reply) error {
    if cf.RunID == "" { return battle.ErrInvalidArgs }
    ref, err := s.ghosts.Get(ctx, cf.SessionID, cf.RunID)
    if err != nil { return err }
    if ref == nil { return battle.ErrNotFound }
    cmp := ghost.Compare(ref, cf.TotalDistance, cf.ElapsedSec)
    s.reply(direct, &battledto.Reply{Op: cf.Op, Ok: true, Ghost: &battledto.GhostComparison{
        RunID:       ref.RunID,
        Status:      string(cmp.Status),
        TimeDiffSec: cmp.TimeDiffSec,
        GapMeters:   cmp.GapMeters,
        RefTimeSec:  cmp.RefTimeSec,
        Message:     s.ghostText(cmp),
    }})
    return nil
}

// ghostText renders the runner-facing notice for a comparison.
func (s *Server) ghostText(cmp *ghost.Comparison) string {
    key := "ghost." + strings.ToLower(string(cmp.Status))
    msg, err := s.cat.Render(key, map[string]any{"Gap": int(math.Round(cmp.GapMeters))})
    if err != nil { return "" }
    return msg
}

func (s *Server) reply(direct chan<- *battledto.Reply, r *battledto.Reply) {
    select {
    case direct <- r:
    default:
        obslog.L().Warn("ws_reply_drop", zap.String("op", r.Op))
    }
}

// notifyError broadcasts a structured error notice to the session topic.
func (s *Server) notifyError(ctx context.Context, sessionID, op string, err error) {
    de := toDomainError(err)
    obslog.L().Warn("battle_handler_error",
        zap.String("session_id", sessionID),
        zap.String("op", op),
        zap.String("code", de.Code),
        zap.Error(err),
    )
    frame := &battledto.Frame{
        Type:       battledto.TypeError,
        SessionID:  sessionID,
        ErrorCode:  de.Code,
        Message:    s.cat.ErrorText(de.Code),
        HTTPStatus: de.HTTPStatus,
        Timestamp:  time.Now().UnixMilli(),
    }
    if perr := s.pub.Publish(ctx, sessionID, frame); perr != nil {
        obslog.L().Warn("battle_error_publish_failed", zap.String("session_id", sessionID), zap.Error(perr))
    }
}
