package arena

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/agent"
	"github.com/park285/llm-chess-arena/internal/game"
	"github.com/park285/llm-chess-arena/internal/obslog"
)

var ErrMatchHalted = errors.New("match halted on provider failure")

// Driver는 한 대국의 턴 루프. Step 한 번에 최대 한 수만 적용하고 반환.
type Driver struct {
	mu sync.Mutex

	session *game.Session
	white   agent.Mover
	black   agent.Mover

	moveTimeout time.Duration
	stuckWindow time.Duration

	// 마지막으로 수가 적용된 시각. stuck 감지 기준.
	lastProgress time.Time
	haltErr      error

	logger *zap.Logger
}

type DriverConfig struct {
	MoveTimeout time.Duration
	StuckWindow time.Duration
}

func NewDriver(session *game.Session, white, black agent.Mover, cfg DriverConfig) *Driver {
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = 5 * time.Second
	}
	if cfg.StuckWindow <= 0 {
		cfg.StuckWindow = 5 * time.Second
	}
	return &Driver{
		session:     session,
		white:       white,
		black:       black,
		moveTimeout: cfg.MoveTimeout,
		stuckWindow: cfg.StuckWindow,
		logger:      obslog.L().Named("driver"),
	}
}

func (d *Driver) Session() *game.Session { return d.session }

func (d *Driver) WhiteName() string { return d.white.Name() }
func (d *Driver) BlackName() string { return d.black.Name() }

// LastError는 대국을 멈춘 공급자 오류. 없으면 nil.
func (d *Driver) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.haltErr
}

// Step은 차례인 쪽의 수 하나를 받아 적용함. 수가 적용됐으면 true.
// 일시정지/종료/중단 상태에서는 아무것도 하지 않음.
func (d *Driver) Step(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.haltErr != nil {
		return false, d.haltErr
	}

	phase := d.session.Phase()
	var mover agent.Mover
	switch phase {
	case game.PhaseWhiteToMove:
		mover = d.white
	case game.PhaseBlackToMove:
		mover = d.black
	default:
		return false, nil
	}

	if d.lastProgress.IsZero() {
		d.lastProgress = time.Now()
	}

	snap := d.session.Snapshot()
	proposed, err := agent.CallWithDeadline(ctx, d.moveTimeout, mover, snap)
	if err != nil {
		return d.recoverLocked(mover, err)
	}

	if _, aerr := d.session.ExecuteMove(proposed); aerr != nil {
		if errors.Is(aerr, game.ErrGamePaused) || errors.Is(aerr, game.ErrGameOver) {
			// 호출 중에 제어 명령이 끼어든 경우. 제안은 버림.
			return false, nil
		}
		d.logger.Warn("proposed move rejected",
			zap.String("agent", mover.Name()),
			zap.String("move", proposed),
			zap.Error(aerr))
		return d.fallbackLocked(mover)
	}

	d.lastProgress = time.Now()
	return true, nil
}

// recoverLocked은 제안 실패를 종류별로 처리. 타임아웃과 무응답은 무작위 수로
// 대체하고, 전송 오류는 대국을 멈춤.
func (d *Driver) recoverLocked(mover agent.Mover, err error) (bool, error) {
	switch {
	case errors.Is(err, agent.ErrMoveTimeout), errors.Is(err, agent.ErrNoMoveProposed):
		d.logger.Warn("agent produced no move, falling back to random",
			zap.String("agent", mover.Name()),
			zap.Error(err))
		return d.fallbackLocked(mover)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false, err
	default:
		d.logger.Error("provider failure, halting match",
			zap.String("agent", mover.Name()),
			zap.Error(err))
		d.haltErr = errors.Join(ErrMatchHalted, err)
		d.session.Pause()
		return false, d.haltErr
	}
}

// fallbackLocked은 무작위 합법수 한 번으로 재시도. 그마저 실패하면 그대로 보고.
func (d *Driver) fallbackLocked(mover agent.Mover) (bool, error) {
	rec, err := d.session.RandomMove()
	if err != nil {
		if errors.Is(err, game.ErrGamePaused) || errors.Is(err, game.ErrGameOver) {
			return false, nil
		}
		return false, err
	}
	d.logger.Info("random fallback applied",
		zap.String("agent", mover.Name()),
		zap.String("move", rec.UCI))
	d.lastProgress = time.Now()
	return true, nil
}

// Stuck은 진행 차례인데도 stuck 윈도우 동안 수가 없었는지 보고.
// 공급자 오류로 멈춘 대국은 막힌 것이 아니라 끝난 것으로 취급.
func (d *Driver) Stuck() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.haltErr != nil {
		return false
	}
	phase := d.session.Phase()
	if phase != game.PhaseWhiteToMove && phase != game.PhaseBlackToMove {
		return false
	}
	return !d.lastProgress.IsZero() && time.Since(d.lastProgress) > d.stuckWindow
}

// ForceProgress는 막힌 판에 무작위 수를 강제로 적용. 멈춘 대국에는 거부.
func (d *Driver) ForceProgress() (game.MoveRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.haltErr != nil {
		return game.MoveRecord{}, d.haltErr
	}
	rec, err := d.session.ForceRandomMove()
	if err == nil {
		d.lastProgress = time.Now()
	}
	return rec, err
}

// ClearHalt는 공급자 오류로 멈춘 대국을 다시 굴릴 수 있게 함. 재시작과
// 명시적 재개 경로에서 진행 시계도 함께 초기화.
func (d *Driver) ClearHalt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.haltErr = nil
	d.lastProgress = time.Time{}
}
