package agent

import (
	"context"
	"errors"
	"time"

	"github.com/park285/llm-chess-arena/internal/game"
)

var ErrMoveTimeout = errors.New("agent move timed out")

// CallWithDeadline은 ProposeMove를 별도 고루틴에서 돌리고 d 안에 끝나지 않으면
// ErrMoveTimeout을 반환. 늦게 끝난 호출은 취소가 아니라 유기됨: 컨텍스트로
// 중단을 요청하긴 하지만 강제하지는 못하고, 결과는 버퍼 채널로 흘려보내 버림.
// ProposeMove가 제안만 하고 판을 건드리지 않으므로 유기가 안전함.
func CallWithDeadline(ctx context.Context, d time.Duration, m Mover, snap game.Snapshot) (string, error) {
	type result struct {
		move string
		err  error
	}
	ch := make(chan result, 1)

	cctx, cancel := context.WithTimeout(ctx, d)
	go func() {
		defer cancel()
		mv, err := m.ProposeMove(cctx, snap)
		ch <- result{move: mv, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.move, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrMoveTimeout
	}
}
