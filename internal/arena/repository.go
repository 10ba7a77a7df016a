package arena

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/llm-chess-arena/internal/game"
)

// MatchResult는 끝난 대국 한 판의 영구 기록.
type MatchResult struct {
	MatchID   string
	White     string
	Black     string
	Result    string // "white" | "black" | "draw"
	Method    string
	MovesUCI  []string
	MovesSAN  []string
	StartedAt time.Time
	EndedAt   time.Time
}

// Repository는 끝난 대국을 postgres에 적재.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished match.
func (r *Repository) SaveResult(ctx context.Context, res MatchResult) error {
	if r == nil || r.db == nil {
		return nil
	}

	pgnResult := mapResultToPGN(res.Result)
	pgn := buildPGN(res, pgnResult)

	movesUCIRaw, _ := json.Marshal(res.MovesUCI)
	movesSANRaw, _ := json.Marshal(res.MovesSAN)
	duration := res.EndedAt.Sub(res.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO arena_matches (
        match_id, white_agent, black_agent,
        result, result_method, moves_uci, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
      ) ON CONFLICT (match_id) DO UPDATE SET
        white_agent=EXCLUDED.white_agent,
        black_agent=EXCLUDED.black_agent,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		res.MatchID,
		res.White, res.Black,
		res.Result, strings.TrimSpace(res.Method),
		string(movesUCIRaw), string(movesSANRaw), pgn,
		res.StartedAt, res.EndedAt, duration,
	)
	return err
}

// ResultFromSnapshot은 종료된 세션 스냅샷을 영구 기록으로 변환.
func ResultFromSnapshot(snap game.Snapshot, white, black, result, method string) MatchResult {
	san := make([]string, len(snap.Log))
	for i, rec := range snap.Log {
		san[i] = rec.SAN
	}
	return MatchResult{
		MatchID:   snap.SessionID,
		White:     white,
		Black:     black,
		Result:    result,
		Method:    method,
		MovesUCI:  snap.MovesUCI,
		MovesSAN:  san,
		StartedAt: snap.StartedAt,
		EndedAt:   snap.UpdatedAt,
	}
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(res MatchResult, pgnResult string) string {
	var b strings.Builder
	date := res.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"LLM Arena\"]\n")
	b.WriteString("[Site \"arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(res.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(res.Black)))
	if strings.TrimSpace(res.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(res.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(res.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(res.MovesSAN[i])))
		if i+1 < len(res.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(res.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	if pgnResult != "" {
		b.WriteString(pgnResult)
	}
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
