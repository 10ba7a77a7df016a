package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/llm-chess-arena/internal/game"
)

const snapshotTTL = 24 * time.Hour

// MatchSnapshot은 redis에 눕혀 두는 대국 상태. 수 목록만 믿고 복원함.
type MatchSnapshot struct {
	MatchID   string            `json:"match_id"`
	White     string            `json:"white"`
	Black     string            `json:"black"`
	FEN       string            `json:"fen"`
	Phase     game.Phase        `json:"phase"`
	Status    string            `json:"status"`
	Log       []game.MoveRecord `json:"log"`
	MovesUCI  []string          `json:"moves_uci"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store는 대국 스냅샷의 redis 저장소.
type Store struct {
	rdb *redis.Client
}

func NewStore(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for match store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// NewStoreWithClient는 준비된 클라이언트로 저장소를 만듦. 테스트용.
func NewStoreWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Save는 스냅샷을 쓰고 최근 대국 포인터를 갱신.
func (s *Store) Save(ctx context.Context, snap MatchSnapshot) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, matchKey(snap.MatchID), raw, snapshotTTL).Err(); err != nil {
		return err
	}
	return s.rdb.Set(ctx, latestKey(), snap.MatchID, snapshotTTL).Err()
}

// Load는 ID로 스냅샷을 읽음. 없으면 (nil, nil).
func (s *Store) Load(ctx context.Context, matchID string) (*MatchSnapshot, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	raw, err := s.rdb.Get(ctx, matchKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap MatchSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// LoadLatest는 가장 최근에 저장된 대국을 읽음.
func (s *Store) LoadLatest(ctx context.Context) (*MatchSnapshot, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	id, err := s.rdb.Get(ctx, latestKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, id)
}

// Reconstruct는 저장된 UCI 수 목록을 시작 국면부터 다시 적용해 게임을 복원.
// FEN은 표시용으로만 들고 다니고, 복원에는 쓰지 않음.
func Reconstruct(moves []string) (*nchess.Game, error) {
	g := nchess.NewGame()
	for _, mv := range moves {
		if err := g.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %q: %w", mv, err)
		}
	}
	return g, nil
}

func matchKey(id string) string { return "arena:match:" + strings.TrimSpace(id) }
func latestKey() string         { return "arena:match:latest" }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
