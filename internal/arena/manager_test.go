package arena

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/llm-chess-arena/internal/config"
	"github.com/park285/llm-chess-arena/internal/game"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := &config.AppConfig{
		WhiteProvider: config.RandomProviderName,
		BlackProvider: config.RandomProviderName,
		MoveTimeout:   time.Second,
		StuckWindow:   2 * time.Second,
		LLMMaxTokens:  100,
	}
	providers := map[string]config.Provider{
		config.RandomProviderName: {Name: config.RandomProviderName},
	}
	m, err := NewManager(cfg, providers)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestManagerResumeClearsHalt(t *testing.T) {
	m := newTestManager(t)

	// 공급자 오류로 멈춘 드라이버를 끼워 넣음.
	white := &scriptedMover{name: "w", err: errors.New("connection refused")}
	black := &scriptedMover{name: "b"}
	d := NewDriver(game.NewSession(), white, black, DriverConfig{
		MoveTimeout: 100 * time.Millisecond,
		StuckWindow: time.Second,
	})
	d.Session().Start()
	if _, err := d.Step(context.Background()); !errors.Is(err, ErrMatchHalted) {
		t.Fatalf("Step error = %v, want ErrMatchHalted", err)
	}
	m.mu.Lock()
	m.driver = d
	m.mu.Unlock()

	// 재개는 명시적 재시도. 오류를 지우고 다시 굴림.
	white.err = nil
	white.moves = []string{"e2e4"}
	st := m.Resume()
	if st.HaltErr != "" {
		t.Errorf("HaltErr after resume = %q, want empty", st.HaltErr)
	}
	if st.Snapshot.Phase != game.PhaseWhiteToMove {
		t.Errorf("phase after resume = %v, want %v", st.Snapshot.Phase, game.PhaseWhiteToMove)
	}
	applied, err := d.Step(context.Background())
	if err != nil || !applied {
		t.Fatalf("Step after resume = (%v, %v), want (true, nil)", applied, err)
	}
}

func TestManagerStartAfterGameOver(t *testing.T) {
	m := newTestManager(t)
	m.Start()
	sess := m.State().Snapshot.SessionID

	for _, uci := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		m.mu.Lock()
		d := m.driver
		m.mu.Unlock()
		if _, err := d.Session().ExecuteMove(uci); err != nil {
			t.Fatalf("ExecuteMove(%s): %v", uci, err)
		}
	}
	m.mu.Lock()
	m.archived = true
	m.mu.Unlock()

	st := m.Start()
	if st.Snapshot.Phase != game.PhaseWhiteToMove {
		t.Fatalf("phase after restart = %v, want %v", st.Snapshot.Phase, game.PhaseWhiteToMove)
	}
	if len(st.Snapshot.Log) != 0 {
		t.Errorf("log length after restart = %d, want 0", len(st.Snapshot.Log))
	}
	if st.Snapshot.SessionID == sess {
		t.Error("session id not rotated on restart")
	}
	m.mu.Lock()
	archived := m.archived
	m.mu.Unlock()
	if archived {
		t.Error("archived flag not cleared on restart")
	}
}

func TestManagerRestoreLatest(t *testing.T) {
	m := newTestManager(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := NewStoreWithClient(rdb)
	m.AttachStore(store)

	ctx := context.Background()
	if err := store.Save(ctx, MatchSnapshot{
		MatchID:  "m1",
		White:    config.RandomProviderName,
		Black:    config.RandomProviderName,
		Phase:    game.PhasePaused,
		MovesUCI: []string{"e2e4", "e7e5"},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ok, err := m.RestoreLatest(ctx)
	if err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if !ok {
		t.Fatal("expected restore")
	}
	st := m.State()
	if st.Snapshot.SessionID != "m1" {
		t.Errorf("session id = %q, want m1", st.Snapshot.SessionID)
	}
	if st.Snapshot.Phase != game.PhasePaused {
		t.Errorf("phase = %v, want %v", st.Snapshot.Phase, game.PhasePaused)
	}
	if len(st.Snapshot.MovesUCI) != 2 {
		t.Errorf("moves = %d, want 2", len(st.Snapshot.MovesUCI))
	}

	// 재개하면 이어서 둠.
	if got := m.Resume().Snapshot.Phase; got != game.PhaseWhiteToMove {
		t.Fatalf("phase after resume = %v, want %v", got, game.PhaseWhiteToMove)
	}
	m.mu.Lock()
	d := m.driver
	m.mu.Unlock()
	applied, err := d.Step(ctx)
	if err != nil || !applied {
		t.Fatalf("Step after restore = (%v, %v), want (true, nil)", applied, err)
	}
}

func TestManagerRestoreLatestSkipsFinishedMatch(t *testing.T) {
	m := newTestManager(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := NewStoreWithClient(rdb)
	m.AttachStore(store)

	ctx := context.Background()
	if err := store.Save(ctx, MatchSnapshot{
		MatchID:  "done",
		White:    config.RandomProviderName,
		Black:    config.RandomProviderName,
		Phase:    game.PhaseOver,
		MovesUCI: []string{"f2f3", "e7e5", "g2g4", "d8h4"},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ok, err := m.RestoreLatest(ctx)
	if err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if ok {
		t.Error("finished match should not be restored")
	}
}

func TestManagerAfterMoveReportsMovedDriver(t *testing.T) {
	m := newTestManager(t)
	m.Start()
	m.mu.Lock()
	old := m.driver
	m.mu.Unlock()
	oldID := old.Session().ID()
	if _, err := old.Session().ExecuteMove("e2e4"); err != nil {
		t.Fatalf("ExecuteMove: %v", err)
	}

	// 마지막 수 처리 전에 Reset이 끼어든 상황.
	if _, err := m.Reset("", ""); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	var last MatchState
	m.OnUpdate(func(st MatchState) { last = st })
	m.afterMove(context.Background(), old)

	if last.Snapshot.SessionID != oldID {
		t.Errorf("afterMove reported session %q, want %q", last.Snapshot.SessionID, oldID)
	}
	if len(last.Snapshot.MovesUCI) != 1 {
		t.Errorf("reported moves = %d, want 1", len(last.Snapshot.MovesUCI))
	}
}
