package battledto

// MessageType identifies an outbound frame on a session topic.
type MessageType string

const (
    TypeBattleReady  MessageType = "BATTLE_READY"
    TypeBattleStart  MessageType = "BATTLE_START"
    TypeBattleUpdate MessageType = "BATTLE_UPDATE"
    TypeBattleEnd    MessageType = "BATTLE_END"
    TypeError        MessageType = "ERROR"
)

// RankingEntry is one row of a live ranking broadcast.
type RankingEntry struct {
    UserID   string  `json:"userId"`
    Name     string  `json:"name,omitempty"`
    Distance float64 `json:"distance"`
    Rank     int     `json:"rank"`
}

// Frame is the outbound message published to every subscriber of a session topic.
// 모든 구독자가 동일한 순서로 수신해야 한다.
type Frame struct {
    Type      MessageType `json:"type"`
    SessionID string      `json:"sessionId,omitempty"`
    UserID    string      `json:"userId,omitempty"`

    IsReady  *bool `json:"isReady,omitempty"`
    AllReady *bool `json:"allReady,omitempty"`

    Rankings []RankingEntry `json:"rankings,omitempty"`

    ErrorCode  string `json:"errorCode,omitempty"`
    Message    string `json:"message,omitempty"`
    HTTPStatus int    `json:"httpStatus,omitempty"`

    // Seq orders ranking frames within a session: it is assigned by the
    // state transaction that produced the frame, so a frame with a lower
    // sequence than one already seen is stale and must be discarded.
    Seq int64 `json:"seq,omitempty"`

    Timestamp int64 `json:"timestamp,omitempty"` // epoch millis
}

// Bool returns a pointer for optional frame flags.
func Bool(b bool) *bool { return &b }
