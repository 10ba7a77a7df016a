package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/game"
	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/obslog"
)

var (
	ErrNoMoveProposed = errors.New("agent proposed no move")
)

// Mover는 한 수를 제안하는 쪽. 제안만 하고 판은 건드리지 않음.
type Mover interface {
	Name() string
	ProposeMove(ctx context.Context, snap game.Snapshot) (string, error)
}

const (
	toolAvailableMoves = "available_moves"
	toolExecuteMove    = "execute_move"

	// 도구 왕복 상한. 모델이 계속 available_moves만 부르면 여기서 끊음.
	maxToolTurns = 6
)

var chessTools = []llm.Tool{
	{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        toolAvailableMoves,
			Description: "Get all legal moves in UCI format for the current position.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	},
	{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        toolExecuteMove,
			Description: "Submit your chosen move in UCI format, e.g. e2e4.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"move":{"type":"string","description":"The move in UCI format"}},"required":["move"]}`),
		},
	},
}

// ChessAgent는 chat completions 도구 호출로 수를 고르는 LLM 대국자.
type ChessAgent struct {
	name        string
	color       string
	client      *llm.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

type Config struct {
	Name        string
	Color       string
	Model       string
	MaxTokens   int
	Temperature float64
}

func NewChessAgent(client *llm.Client, cfg Config) *ChessAgent {
	name := cfg.Name
	if name == "" {
		name = strings.ToLower(cfg.Color) + "-agent"
	}
	return &ChessAgent{
		name:        name,
		color:       cfg.Color,
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      obslog.L().Named("agent"),
	}
}

func (a *ChessAgent) Name() string { return a.name }

// ProposeMove는 도구 호출 루프를 돌려 UCI 수 하나를 받아냄.
// execute_move 호출은 제안으로만 취급하고 여기서 대화를 끝냄.
// 판에 적용하는 일은 호출자 몫이라 뒤늦게 도착한 제안은 버려도 부작용이 없음.
func (a *ChessAgent) ProposeMove(ctx context.Context, snap game.Snapshot) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: a.systemPrompt()},
		{Role: llm.RoleUser, Content: a.turnPrompt(snap)},
	}

	for turn := 0; turn < maxToolTurns; turn++ {
		choice, err := a.client.ChatCompletion(ctx, llm.ChatRequest{
			Model:       a.model,
			Messages:    messages,
			Tools:       chessTools,
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
		})
		if err != nil {
			return "", fmt.Errorf("agent %s: %w", a.name, err)
		}

		msg := choice.Message
		if len(msg.ToolCalls) == 0 {
			// 도구를 안 쓰고 본문에 수를 적는 모델도 있음.
			if mv := firstLegalToken(msg.Content, snap.LegalMoves); mv != "" {
				return mv, nil
			}
			a.logger.Debug("assistant turn without usable move",
				zap.String("agent", a.name),
				zap.String("content", msg.Content))
			messages = append(messages, msg,
				llm.Message{Role: llm.RoleUser, Content: "Reply by calling execute_move with one legal UCI move."})
			continue
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			switch call.Function.Name {
			case toolExecuteMove:
				mv, err := parseMoveArgs(call.Function.Arguments)
				if err != nil {
					return "", fmt.Errorf("agent %s: %w", a.name, err)
				}
				return mv, nil
			case toolAvailableMoves:
				messages = append(messages, llm.Message{
					Role:       llm.RoleTool,
					ToolCallID: call.ID,
					Name:       toolAvailableMoves,
					Content:    strings.Join(snap.LegalMoves, ", "),
				})
			default:
				messages = append(messages, llm.Message{
					Role:       llm.RoleTool,
					ToolCallID: call.ID,
					Name:       call.Function.Name,
					Content:    "unknown tool",
				})
			}
		}
	}
	return "", fmt.Errorf("agent %s: %w", a.name, ErrNoMoveProposed)
}

func (a *ChessAgent) systemPrompt() string {
	return fmt.Sprintf(
		"You are a chess player playing as %s. "+
			"First call available_moves() to get the list of legal moves. "+
			"Then immediately call execute_move(move) with exactly one move from that list. "+
			"Do not analyze at length. Any move is better than no move.",
		strings.ToLower(a.color))
}

func (a *ChessAgent) turnPrompt(snap game.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "It is your turn as %s.\n", a.color)
	fmt.Fprintf(&b, "Current position (FEN): %s\n", snap.FEN)
	if n := len(snap.Log); n > 0 {
		fmt.Fprintf(&b, "Last move: %s\n", snap.Log[n-1].Description)
	}
	b.WriteString("Pick one legal move and submit it with execute_move.")
	return b.String()
}

func parseMoveArgs(raw string) (string, error) {
	var args struct {
		Move string `json:"move"`
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("parse execute_move arguments: %w", err)
	}
	mv := strings.TrimSpace(args.Move)
	if mv == "" {
		return "", errors.New("execute_move called without a move")
	}
	return mv, nil
}

// firstLegalToken은 자유 서술 속에서 합법수와 일치하는 첫 토큰을 찾음.
func firstLegalToken(content string, legal []string) string {
	if content == "" {
		return ""
	}
	set := make(map[string]struct{}, len(legal))
	for _, m := range legal {
		set[m] = struct{}{}
	}
	for _, tok := range strings.FieldsFunc(content, func(r rune) bool {
		return !(r >= 'a' && r <= 'h' || r >= '1' && r <= '8' || r == 'q' || r == 'r' || r == 'b' || r == 'n')
	}) {
		if _, ok := set[strings.ToLower(tok)]; ok {
			return strings.ToLower(tok)
		}
	}
	return ""
}
