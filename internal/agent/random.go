package agent

import (
	"context"
	"math/rand"
	"time"

	"github.com/park285/llm-chess-arena/internal/game"
)

// RandomMover는 LLM 없이 합법수 중 하나를 고르는 내장 대국자.
// 백엔드 점검이나 한쪽만 LLM으로 돌리는 경우에 사용.
type RandomMover struct {
	name string
	rng  *rand.Rand
}

func NewRandomMover(name string) *RandomMover {
	if name == "" {
		name = "random"
	}
	return &RandomMover{
		name: name,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RandomMover) Name() string { return r.name }

func (r *RandomMover) ProposeMove(_ context.Context, snap game.Snapshot) (string, error) {
	if len(snap.LegalMoves) == 0 {
		return "", game.ErrNoLegalMove
	}
	return snap.LegalMoves[r.rng.Intn(len(snap.LegalMoves))], nil
}
