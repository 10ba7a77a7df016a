package arenadto

import "time"

// MoveEntry는 이동 로그 한 줄.
type MoveEntry struct {
	Number      int       `json:"number"`
	Color       string    `json:"color"`
	UCI         string    `json:"uci"`
	SAN         string    `json:"san"`
	Description string    `json:"description"`
	PlayedAt    time.Time `json:"played_at"`
}

// StateResponse는 표시 계층이 쓰는 대국 상태 전체.
type StateResponse struct {
	MatchID string      `json:"match_id"`
	White   string      `json:"white"`
	Black   string      `json:"black"`
	FEN     string      `json:"fen"`
	Turn    string      `json:"turn"`
	Phase   string      `json:"phase"`
	Status  string      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Moves   []MoveEntry `json:"moves"`
	PGN     string      `json:"pgn,omitempty"`
	Layout  string      `json:"layout,omitempty"`
}

// ControlRequest는 대국 제어 명령.
type ControlRequest struct {
	Action string `json:"action"` // start | pause | resume | reset
	White  string `json:"white,omitempty"`
	Black  string `json:"black,omitempty"`
}

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
