package game

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
)

var (
	ErrGameOver    = errors.New("game is already over")
	ErrGamePaused  = errors.New("game is paused")
	ErrNotStarted  = errors.New("game has not started")
	ErrInvalidMove = errors.New("invalid chess move")
	ErrNoLegalMove = errors.New("no legal moves available")
)

// Phase는 한 판의 진행 단계.
type Phase string

const (
	PhaseNotStarted  Phase = "not_started"
	PhaseWhiteToMove Phase = "white_to_move"
	PhaseBlackToMove Phase = "black_to_move"
	PhasePaused      Phase = "paused"
	PhaseOver        Phase = "over"
)

// MoveRecord는 적용된 수 하나의 로그 항목.
type MoveRecord struct {
	Number      int       `json:"number"`
	Color       string    `json:"color"`
	UCI         string    `json:"uci"`
	SAN         string    `json:"san"`
	Description string    `json:"description"`
	FEN         string    `json:"fen"`
	PlayedAt    time.Time `json:"played_at"`
}

// Snapshot은 한 순간의 판 상태. 세션 뮤텍스 밖으로 안전하게 들고 나갈 수 있음.
type Snapshot struct {
	SessionID  string
	FEN        string
	Turn       string
	Phase      Phase
	Status     string
	Log        []MoveRecord
	MovesUCI   []string
	PGN        string
	LegalMoves []string
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// Session은 체스 한 판의 단일 소유자. 모든 변경은 뮤텍스 아래에서 일어남.
type Session struct {
	mu sync.Mutex

	id    string
	game  *nchess.Game
	rng   *rand.Rand
	log   []MoveRecord
	phase Phase
	// 일시정지 직전 단계. Resume 시 복원.
	resumePhase Phase
	status      string
	startedAt   time.Time
	updatedAt   time.Time
}

func NewSession() *Session {
	return &Session{
		id:    uuid.NewString(),
		game:  nchess.NewGame(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		phase: PhaseNotStarted,
	}
}

// RestoreSession은 저장된 수열을 처음부터 재생해 세션을 복원.
// 끝나지 않은 판은 일시정지 상태로 돌려주고, 재개는 조작자 몫.
func RestoreSession(id string, movesUCI []string, startedAt time.Time) (*Session, error) {
	s := NewSession()
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		s.id = id
	}
	s.startedAt = startedAt
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	s.phase = PhaseWhiteToMove
	for _, uci := range movesUCI {
		if _, err := s.applyLocked(strings.TrimSpace(uci)); err != nil {
			return nil, fmt.Errorf("replay move %q: %w", uci, err)
		}
	}
	if s.phase != PhaseOver {
		s.resumePhase = s.phase
		s.phase = PhasePaused
	}
	return s, nil
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Start는 대국을 시작. 끝난 판에서는 새 판을 만들어 바로 시작하고,
// 진행 중이거나 일시정지 상태에서는 no-op.
func (s *Session) Start() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseNotStarted:
	case PhaseOver:
		s.resetLocked()
	default:
		return s.phase
	}
	s.phase = PhaseWhiteToMove
	s.startedAt = time.Now()
	s.updatedAt = s.startedAt
	return s.phase
}

// Pause는 진행 중인 판을 멈춤. 끝난 판은 그대로 둠.
func (s *Session) Pause() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseWhiteToMove || s.phase == PhaseBlackToMove {
		s.resumePhase = s.phase
		s.phase = PhasePaused
		s.updatedAt = time.Now()
	}
	return s.phase
}

// Resume은 일시정지를 해제하고 멈췄던 차례부터 재개.
func (s *Session) Resume() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhasePaused {
		s.phase = s.resumePhase
		s.updatedAt = time.Now()
	}
	return s.phase
}

// Reset은 새 판으로 되돌림. 세션 ID는 새로 발급.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.id = uuid.NewString()
	s.game = nchess.NewGame()
	s.log = nil
	s.phase = PhaseNotStarted
	s.resumePhase = ""
	s.status = ""
	s.startedAt = time.Time{}
	s.updatedAt = time.Now()
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot은 현재 상태의 복사본을 반환.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	logCopy := make([]MoveRecord, len(s.log))
	copy(logCopy, s.log)
	uci := make([]string, len(s.log))
	for i, rec := range s.log {
		uci[i] = rec.UCI
	}
	return Snapshot{
		SessionID:  s.id,
		FEN:        s.game.FEN(),
		Turn:       s.game.Position().Turn().Name(),
		Phase:      s.phase,
		Status:     s.status,
		Log:        logCopy,
		MovesUCI:   uci,
		PGN:        s.game.String(),
		LegalMoves: s.legalMovesLocked(),
		StartedAt:  s.startedAt,
		UpdatedAt:  s.updatedAt,
	}
}

// LegalMoves는 현재 국면의 합법수를 UCI 표기로 반환.
func (s *Session) LegalMoves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.legalMovesLocked()
}

func (s *Session) legalMovesLocked() []string {
	moves := s.game.ValidMoves()
	out := make([]string, 0, len(moves))
	pos := s.game.Position()
	for i := range moves {
		out = append(out, nchess.UCINotation{}.Encode(pos, &moves[i]))
	}
	return out
}

// ExecuteMove는 UCI 수를 검증 후 적용하고 로그 항목을 반환.
func (s *Session) ExecuteMove(uci string) (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.movableLocked(); err != nil {
		return MoveRecord{}, err
	}
	return s.applyLocked(strings.TrimSpace(uci))
}

// RandomMove는 합법수 중 하나를 무작위로 적용. 진행 중일 때만 동작.
func (s *Session) RandomMove() (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.movableLocked(); err != nil {
		return MoveRecord{}, err
	}
	return s.randomLocked()
}

// ForceRandomMove는 일시정지 여부와 무관하게 무작위 수를 강제 적용.
// 막힌 판을 풀기 위한 운영자용 탈출구.
func (s *Session) ForceRandomMove() (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseOver {
		return MoveRecord{}, ErrGameOver
	}
	if s.phase == PhaseNotStarted {
		return MoveRecord{}, ErrNotStarted
	}
	return s.randomLocked()
}

func (s *Session) movableLocked() error {
	switch s.phase {
	case PhaseOver:
		return ErrGameOver
	case PhasePaused:
		return ErrGamePaused
	case PhaseNotStarted:
		return ErrNotStarted
	}
	return nil
}

func (s *Session) randomLocked() (MoveRecord, error) {
	moves := s.game.ValidMoves()
	if len(moves) == 0 {
		return MoveRecord{}, ErrNoLegalMove
	}
	mv := moves[s.rng.Intn(len(moves))]
	pos := s.game.Position()
	return s.applyLocked(nchess.UCINotation{}.Encode(pos, &mv))
}

func (s *Session) applyLocked(uci string) (MoveRecord, error) {
	pos := s.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %s", ErrInvalidMove, uci)
	}
	mover := pos.Turn()
	moved := pos.Board().Piece(mv.S1()).Type()
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	ply := len(s.log) + 1
	if err := s.game.Move(mv, nil); err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %s", ErrInvalidMove, uci)
	}

	rec := MoveRecord{
		Number:      (ply + 1) / 2,
		Color:       mover.Name(),
		UCI:         uci,
		SAN:         san,
		Description: describeMove((ply+1)/2, mover, moved, mv, san),
		FEN:         s.game.FEN(),
		PlayedAt:    time.Now(),
	}
	s.log = append(s.log, rec)
	s.updatedAt = rec.PlayedAt

	prev := s.phase
	s.status, s.phase = s.deriveLocked(mv)
	// 일시정지 중 강제된 수는 일시정지를 유지. 재개할 차례만 갱신.
	if prev == PhasePaused && s.phase != PhaseOver {
		s.resumePhase = s.phase
		s.phase = PhasePaused
	}
	return rec, nil
}

// deriveLocked는 방금 적용된 수를 기준으로 표시 상태와 다음 단계를 계산.
func (s *Session) deriveLocked(last *nchess.Move) (string, Phase) {
	switch s.game.Outcome() {
	case nchess.WhiteWon:
		return "Checkmate! White wins!", PhaseOver
	case nchess.BlackWon:
		return "Checkmate! Black wins!", PhaseOver
	case nchess.Draw:
		switch s.game.Method() {
		case nchess.Stalemate:
			return "Game ended in stalemate!", PhaseOver
		case nchess.InsufficientMaterial:
			return "Game ended - insufficient material to checkmate!", PhaseOver
		default:
			return "Game ended in a draw - no legal moves", PhaseOver
		}
	}
	next := PhaseWhiteToMove
	if s.game.Position().Turn() == nchess.Black {
		next = PhaseBlackToMove
	}
	if last != nil && last.HasTag(nchess.Check) {
		return "Check!", next
	}
	return "", next
}
