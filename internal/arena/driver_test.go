package arena

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/park285/llm-chess-arena/internal/agent"
	"github.com/park285/llm-chess-arena/internal/game"
)

// scriptedMover는 준비된 수를 순서대로 내놓는 대국자.
type scriptedMover struct {
	name  string
	moves []string
	idx   int
	err   error
	delay time.Duration
}

func (s *scriptedMover) Name() string { return s.name }

func (s *scriptedMover) ProposeMove(ctx context.Context, _ game.Snapshot) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	if s.idx >= len(s.moves) {
		return "", agent.ErrNoMoveProposed
	}
	mv := s.moves[s.idx]
	s.idx++
	return mv, nil
}

func newTestDriver(t *testing.T, white, black agent.Mover) *Driver {
	t.Helper()
	session := game.NewSession()
	session.Start()
	return NewDriver(session, white, black, DriverConfig{
		MoveTimeout: 200 * time.Millisecond,
		StuckWindow: time.Second,
	})
}

func TestDriverPlaysFoolsMate(t *testing.T) {
	white := &scriptedMover{name: "w", moves: []string{"f2f3", "g2g4"}}
	black := &scriptedMover{name: "b", moves: []string{"e7e5", "d8h4"}}
	d := newTestDriver(t, white, black)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		applied, err := d.Step(ctx)
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if !applied {
			t.Fatalf("Step %d applied no move", i)
		}
	}

	snap := d.Session().Snapshot()
	if snap.Phase != game.PhaseOver {
		t.Errorf("phase = %v, want %v", snap.Phase, game.PhaseOver)
	}
	if snap.Status != "Checkmate! Black wins!" {
		t.Errorf("status = %q", snap.Status)
	}

	// 끝난 판에서 Step은 no-op.
	applied, err := d.Step(ctx)
	if err != nil || applied {
		t.Errorf("Step after game over = (%v, %v), want (false, nil)", applied, err)
	}
}

func TestDriverFallsBackOnTimeout(t *testing.T) {
	white := &scriptedMover{name: "w", moves: []string{"e2e4"}, delay: 5 * time.Second}
	black := &scriptedMover{name: "b"}
	d := newTestDriver(t, white, black)

	applied, err := d.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !applied {
		t.Fatal("expected fallback move to be applied")
	}
	snap := d.Session().Snapshot()
	if len(snap.Log) != 1 {
		t.Fatalf("log length = %d, want 1", len(snap.Log))
	}
	if snap.Log[0].Color != "White" {
		t.Errorf("fallback move color = %q, want White", snap.Log[0].Color)
	}
}

func TestDriverFallsBackOnIllegalProposal(t *testing.T) {
	white := &scriptedMover{name: "w", moves: []string{"e2e5"}}
	black := &scriptedMover{name: "b"}
	d := newTestDriver(t, white, black)

	applied, err := d.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !applied {
		t.Fatal("expected fallback move after illegal proposal")
	}
	if got := len(d.Session().Snapshot().Log); got != 1 {
		t.Errorf("log length = %d, want 1", got)
	}
}

func TestDriverHaltsOnProviderFailure(t *testing.T) {
	white := &scriptedMover{name: "w", err: errors.New("connection refused")}
	black := &scriptedMover{name: "b"}
	d := newTestDriver(t, white, black)

	applied, err := d.Step(context.Background())
	if applied {
		t.Error("no move should be applied on provider failure")
	}
	if !errors.Is(err, ErrMatchHalted) {
		t.Fatalf("error = %v, want ErrMatchHalted", err)
	}
	if d.LastError() == nil || !strings.Contains(d.LastError().Error(), "connection refused") {
		t.Errorf("LastError = %v", d.LastError())
	}
	if got := d.Session().Phase(); got != game.PhasePaused {
		t.Errorf("phase after halt = %v, want %v", got, game.PhasePaused)
	}

	// 멈춘 대국은 더 굴러가지 않음.
	if _, err := d.Step(context.Background()); !errors.Is(err, ErrMatchHalted) {
		t.Errorf("second Step error = %v, want ErrMatchHalted", err)
	}
}

func TestDriverHaltBlocksForcedProgress(t *testing.T) {
	white := &scriptedMover{name: "w", err: errors.New("bad gateway")}
	black := &scriptedMover{name: "b"}
	session := game.NewSession()
	session.Start()
	d := NewDriver(session, white, black, DriverConfig{
		MoveTimeout: 50 * time.Millisecond,
		StuckWindow: 10 * time.Millisecond,
	})

	if _, err := d.Step(context.Background()); !errors.Is(err, ErrMatchHalted) {
		t.Fatalf("Step error = %v, want ErrMatchHalted", err)
	}

	// 세션만 재개돼도 멈춘 대국은 막힌 판으로 보지 않음.
	session.Resume()
	time.Sleep(30 * time.Millisecond)
	if d.Stuck() {
		t.Error("halted driver reported stuck")
	}
	if _, err := d.ForceProgress(); !errors.Is(err, ErrMatchHalted) {
		t.Errorf("ForceProgress error = %v, want ErrMatchHalted", err)
	}
	if got := len(d.Session().Snapshot().Log); got != 0 {
		t.Errorf("log length = %d, want 0", got)
	}
}

func TestDriverResumesAfterClearHalt(t *testing.T) {
	white := &scriptedMover{name: "w", err: errors.New("connection refused")}
	black := &scriptedMover{name: "b"}
	d := newTestDriver(t, white, black)

	if _, err := d.Step(context.Background()); !errors.Is(err, ErrMatchHalted) {
		t.Fatalf("Step error = %v, want ErrMatchHalted", err)
	}

	// 공급자가 복구된 뒤의 명시적 재개.
	white.err = nil
	white.moves = []string{"e2e4"}
	d.ClearHalt()
	d.Session().Resume()

	applied, err := d.Step(context.Background())
	if err != nil {
		t.Fatalf("Step after ClearHalt: %v", err)
	}
	if !applied {
		t.Fatal("expected move after cleared halt")
	}
	if d.LastError() != nil {
		t.Errorf("LastError = %v, want nil", d.LastError())
	}
}

func TestDriverNoopWhilePaused(t *testing.T) {
	white := &scriptedMover{name: "w", moves: []string{"e2e4"}}
	black := &scriptedMover{name: "b"}
	d := newTestDriver(t, white, black)
	d.Session().Pause()

	applied, err := d.Step(context.Background())
	if err != nil || applied {
		t.Errorf("Step while paused = (%v, %v), want (false, nil)", applied, err)
	}
	if got := len(d.Session().Snapshot().Log); got != 0 {
		t.Errorf("log length = %d, want 0", got)
	}
}

func TestDriverStuckDetection(t *testing.T) {
	white := &scriptedMover{name: "w", moves: []string{"e2e4"}}
	black := &scriptedMover{name: "b"}
	session := game.NewSession()
	session.Start()
	d := NewDriver(session, white, black, DriverConfig{
		MoveTimeout: 10 * time.Millisecond,
		StuckWindow: 20 * time.Millisecond,
	})

	if d.Stuck() {
		t.Error("fresh driver reported stuck")
	}
	if _, err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if !d.Stuck() {
		t.Error("driver not stuck after window elapsed")
	}
	if _, err := d.ForceProgress(); err != nil {
		t.Fatalf("ForceProgress: %v", err)
	}
	if d.Stuck() {
		t.Error("driver still stuck after forced progress")
	}
}
