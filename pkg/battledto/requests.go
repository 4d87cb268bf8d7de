package battledto

// GpsSample is the raw coordinate attached to a distance update. The engine
// trusts the client-computed cumulative distance; the sample is retained for
// broadcast payloads and later course verification.
type GpsSample struct {
    Latitude  float64 `json:"latitude"`
    Longitude float64 `json:"longitude"`
    Altitude  float64 `json:"altitude,omitempty"`
    Timestamp int64   `json:"timestamp,omitempty"` // epoch millis
}

// ClientFrame is one inbound message from a runner's connection.
type ClientFrame struct {
    Op        string `json:"op"`
    SessionID string `json:"sessionId,omitempty"`
    UserID    string `json:"userId,omitempty"`

    // op=ready
    IsReady bool `json:"isReady,omitempty"`

    // op=gps
    TotalDistance float64    `json:"totalDistance,omitempty"`
    Gps           *GpsSample `json:"gps,omitempty"`

    // op=ghost
    RunID      string  `json:"runId,omitempty"`
    ElapsedSec float64 `json:"elapsedSec,omitempty"`
}

// Inbound operations.
const (
    OpReady    = "ready"
    OpGps      = "gps"
    OpRankings = "rankings"
    OpFinish   = "finish"
    OpQuit     = "quit"
    OpResult   = "result"
    OpGhost    = "ghost"
)

// Reply is the direct response envelope for request/response operations
// (rankings, result, ghost) on a client connection.
type Reply struct {
    Op       string          `json:"op"`
    Rankings []RankingEntry  `json:"rankings,omitempty"`
    Result   *BattleResult   `json:"result,omitempty"`
    Ghost    *GhostComparison `json:"ghost,omitempty"`
    Ok       bool            `json:"ok"`
}

// BattleResult is the per-participant outcome returned by the result query.
type BattleResult struct {
    SessionID    string `json:"sessionId"`
    UserID       string `json:"userId"`
    Rank         int    `json:"rank"`
    RatingBefore int    `json:"ratingBefore"`
    RatingAfter  int    `json:"ratingAfter"`
    RunRecordID  string `json:"runRecordId,omitempty"`
}

// GhostComparison is the reply to a ghost compare request.
type GhostComparison struct {
    RunID       string  `json:"runId"`
    Status      string  `json:"status"` // AHEAD | BEHIND | EVEN
    TimeDiffSec float64 `json:"timeDiffSec"`
    GapMeters   float64 `json:"gapMeters"`
    RefTimeSec  float64 `json:"refTimeSec"`
    Message     string  `json:"message,omitempty"`
}
