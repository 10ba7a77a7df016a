package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/agent"
	"github.com/park285/llm-chess-arena/internal/config"
	"github.com/park285/llm-chess-arena/internal/game"
	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/obslog"
)

var ErrUnknownProvider = errors.New("unknown provider")

// 스텝 사이 호흡 기본값. 렌더링 쪽이 따라올 시간을 줌.
const defaultStepInterval = 250 * time.Millisecond

// MatchState는 표시 계층에 넘기는 대국 상태 한 벌.
type MatchState struct {
	Snapshot game.Snapshot
	White    string
	Black    string
	HaltErr  string
}

// Manager는 현재 대국 하나를 소유하고 스텝 루프를 돌림.
type Manager struct {
	mu sync.Mutex

	cfg       *config.AppConfig
	providers map[string]config.Provider

	driver *Driver
	store  *Store
	repo   *Repository

	archived bool
	onUpdate func(MatchState)

	logger *zap.Logger
}

func NewManager(cfg *config.AppConfig, providers map[string]config.Provider) (*Manager, error) {
	m := &Manager{
		cfg:       cfg,
		providers: providers,
		logger:    obslog.L().Named("arena"),
	}
	driver, err := m.buildDriver(cfg.WhiteProvider, cfg.BlackProvider)
	if err != nil {
		return nil, err
	}
	m.driver = driver
	return m, nil
}

// AttachStore wires the redis snapshot store. Optional.
func (m *Manager) AttachStore(s *Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = s
}

// AttachRepository wires the postgres archive. Optional.
func (m *Manager) AttachRepository(r *Repository) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repo = r
}

// OnUpdate는 수가 적용되거나 상태가 바뀔 때마다 불릴 콜백을 등록.
func (m *Manager) OnUpdate(fn func(MatchState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

func (m *Manager) Providers() []string {
	return config.ProviderNames(m.providers)
}

// State는 현재 대국 상태의 복사본.
func (m *Manager) State() MatchState {
	m.mu.Lock()
	driver := m.driver
	m.mu.Unlock()
	return stateOf(driver)
}

func stateOf(d *Driver) MatchState {
	st := MatchState{
		Snapshot: d.Session().Snapshot(),
		White:    d.WhiteName(),
		Black:    d.BlackName(),
	}
	if err := d.LastError(); err != nil {
		st.HaltErr = err.Error()
	}
	return st
}

// Start begins the current game. 끝난 판에서는 같은 공급자로 새 판을 시작.
func (m *Manager) Start() MatchState {
	m.mu.Lock()
	driver := m.driver
	if driver.Session().Phase() == game.PhaseOver {
		driver.ClearHalt()
		m.archived = false
	}
	driver.Session().Start()
	m.mu.Unlock()
	return m.publish()
}

func (m *Manager) Pause() MatchState {
	m.mu.Lock()
	m.driver.Session().Pause()
	m.mu.Unlock()
	return m.publish()
}

// Resume은 일시정지를 해제. 공급자 오류로 멈춘 판이면 명시적 재시도로
// 취급해 오류를 지우고 다시 굴림.
func (m *Manager) Resume() MatchState {
	m.mu.Lock()
	driver := m.driver
	m.mu.Unlock()
	if driver.LastError() != nil {
		driver.ClearHalt()
	}
	driver.Session().Resume()
	return m.publish()
}

// Reset은 새 판을 준비. 공급자를 바꿔 끼울 수 있음. 빈 이름은 기존 유지.
func (m *Manager) Reset(whiteProvider, blackProvider string) (MatchState, error) {
	m.mu.Lock()
	if whiteProvider == "" {
		whiteProvider = m.driver.WhiteName()
	}
	if blackProvider == "" {
		blackProvider = m.driver.BlackName()
	}
	driver, err := m.buildDriver(whiteProvider, blackProvider)
	if err != nil {
		m.mu.Unlock()
		return stateOf(m.driver), err
	}
	m.driver = driver
	m.archived = false
	m.mu.Unlock()
	return m.publish(), nil
}

// RestoreLatest는 저장소의 최근 스냅샷으로 대국을 이어받음. 스냅샷이 없거나
// 이미 끝난 판이면 아무것도 하지 않음. 복원된 판은 일시정지로 시작.
func (m *Manager) RestoreLatest(ctx context.Context) (bool, error) {
	m.mu.Lock()
	store := m.store
	m.mu.Unlock()
	if store == nil {
		return false, nil
	}
	snap, err := store.LoadLatest(ctx)
	if err != nil || snap == nil {
		return false, err
	}
	if snap.Phase == game.PhaseOver || len(snap.MovesUCI) == 0 {
		return false, nil
	}
	session, err := game.RestoreSession(snap.MatchID, snap.MovesUCI, snap.StartedAt)
	if err != nil {
		return false, fmt.Errorf("restore match %s: %w", snap.MatchID, err)
	}
	driver, err := m.buildDriverWithSession(session, snap.White, snap.Black)
	if err != nil {
		return false, fmt.Errorf("restore match %s: %w", snap.MatchID, err)
	}
	m.mu.Lock()
	m.driver = driver
	m.archived = false
	m.mu.Unlock()
	m.logger.Info("match restored from snapshot",
		zap.String("match_id", snap.MatchID),
		zap.Int("moves", len(snap.MovesUCI)))
	m.publish()
	return true, nil
}

// Run은 스텝 루프. ctx 취소까지 현재 드라이버를 계속 굴림.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.StepInterval
	if interval <= 0 {
		interval = defaultStepInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	var haltReported *Driver
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		m.mu.Lock()
		driver := m.driver
		m.mu.Unlock()

		applied, err := driver.Step(ctx)
		halted := err != nil && errors.Is(err, ErrMatchHalted)
		if halted && haltReported != driver {
			haltReported = driver
			m.publish()
		}
		// 재개로 오류가 지워졌으면 다음 중단은 다시 알림.
		if !halted && haltReported == driver {
			haltReported = nil
		}
		if !applied && driver.Stuck() {
			if rec, ferr := driver.ForceProgress(); ferr == nil {
				m.logger.Warn("forced random move after stuck window",
					zap.String("move", rec.UCI))
				applied = true
			}
		}
		if applied {
			m.afterMove(ctx, driver)
		}
		timer.Reset(interval)
	}
}

// afterMove는 방금 수가 적용된 드라이버의 상태를 내보내고 저장.
// Reset이 끼어들어 m.driver가 바뀌었어도 수를 둔 판의 상태를 쓴다.
func (m *Manager) afterMove(ctx context.Context, driver *Driver) {
	st := stateOf(driver)
	m.notify(st)
	snap := st.Snapshot

	if m.store != nil {
		saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := m.store.Save(saveCtx, MatchSnapshot{
			MatchID:   snap.SessionID,
			White:     st.White,
			Black:     st.Black,
			FEN:       snap.FEN,
			Phase:     snap.Phase,
			Status:    snap.Status,
			Log:       snap.Log,
			MovesUCI:  snap.MovesUCI,
			StartedAt: snap.StartedAt,
			UpdatedAt: snap.UpdatedAt,
		}); err != nil {
			m.logger.Warn("snapshot save failed", zap.Error(err))
		}
		cancel()
	}

	if snap.Phase == game.PhaseOver {
		m.archiveOnce(ctx, st)
	}
}

func (m *Manager) archiveOnce(ctx context.Context, st MatchState) {
	m.mu.Lock()
	if m.archived || m.repo == nil {
		m.mu.Unlock()
		return
	}
	m.archived = true
	repo := m.repo
	m.mu.Unlock()

	result, method := resultOf(st.Snapshot.Status)
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res := ResultFromSnapshot(st.Snapshot, st.White, st.Black, result, method)
	if err := repo.SaveResult(saveCtx, res); err != nil {
		m.logger.Error("match archive failed",
			zap.String("match_id", res.MatchID),
			zap.Error(err))
		return
	}
	m.logger.Info("match archived",
		zap.String("match_id", res.MatchID),
		zap.String("result", result),
		zap.String("method", method))
}

// resultOf는 표시 상태 문자열에서 결과 토큰과 종료 방식을 뽑아냄.
func resultOf(status string) (result, method string) {
	switch {
	case strings.Contains(status, "White wins"):
		return "white", "checkmate"
	case strings.Contains(status, "Black wins"):
		return "black", "checkmate"
	case strings.Contains(status, "stalemate"):
		return "draw", "stalemate"
	case strings.Contains(status, "insufficient material"):
		return "draw", "insufficient material"
	case strings.Contains(status, "draw"):
		return "draw", "draw"
	default:
		return "", ""
	}
}

func (m *Manager) publish() MatchState {
	m.mu.Lock()
	driver := m.driver
	m.mu.Unlock()
	st := stateOf(driver)
	m.notify(st)
	return st
}

func (m *Manager) notify(st MatchState) {
	m.mu.Lock()
	fn := m.onUpdate
	m.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (m *Manager) buildDriver(whiteProvider, blackProvider string) (*Driver, error) {
	return m.buildDriverWithSession(game.NewSession(), whiteProvider, blackProvider)
}

func (m *Manager) buildDriverWithSession(session *game.Session, whiteProvider, blackProvider string) (*Driver, error) {
	white, err := m.buildMover(whiteProvider, "White")
	if err != nil {
		return nil, err
	}
	black, err := m.buildMover(blackProvider, "Black")
	if err != nil {
		return nil, err
	}
	return NewDriver(session, white, black, DriverConfig{
		MoveTimeout: m.cfg.MoveTimeout,
		StuckWindow: m.cfg.StuckWindow,
	}), nil
}

func (m *Manager) buildMover(providerName, color string) (agent.Mover, error) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	if name == config.RandomProviderName {
		return agent.NewRandomMover(name), nil
	}
	client := llm.NewClient(p.BaseURL, p.APIKey(), llm.WithTimeout(p.Timeout))
	maxTokens := m.cfg.LLMMaxTokens
	if p.MaxTokens > 0 {
		maxTokens = p.MaxTokens
	}
	return agent.NewChessAgent(client, agent.Config{
		Name:        name,
		Color:       color,
		Model:       p.Model,
		MaxTokens:   maxTokens,
		Temperature: m.cfg.LLMTemperature,
	}), nil
}
