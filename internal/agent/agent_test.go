package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/llm-chess-arena/internal/game"
	"github.com/park285/llm-chess-arena/internal/llm"
)

func newSnapshot(t *testing.T) game.Snapshot {
	t.Helper()
	s := game.NewSession()
	s.Start()
	return s.Snapshot()
}

func toolCallResponse(t *testing.T, name, args string) []byte {
	t.Helper()
	body, err := json.Marshal(llm.ChatResponse{
		Choices: []llm.Choice{{Message: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID:       "call_" + name,
				Type:     "function",
				Function: llm.ToolCallFunction{Name: name, Arguments: args},
			}},
		}}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func textResponse(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(llm.ChatResponse{
		Choices: []llm.Choice{{Message: llm.Message{Role: llm.RoleAssistant, Content: content}}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestChessAgentToolLoop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch calls.Add(1) {
		case 1:
			if req.Messages[0].Role != llm.RoleSystem || !strings.Contains(req.Messages[0].Content, "playing as white") {
				t.Errorf("system prompt = %q", req.Messages[0].Content)
			}
			w.Write(toolCallResponse(t, "available_moves", "{}"))
		default:
			// 두 번째 요청에는 합법수 목록이 tool 메시지로 실려 있어야 함.
			last := req.Messages[len(req.Messages)-1]
			if last.Role != llm.RoleTool || !strings.Contains(last.Content, "e2e4") {
				t.Errorf("tool message = %+v", last)
			}
			w.Write(toolCallResponse(t, "execute_move", `{"move":"e2e4"}`))
		}
	}))
	defer srv.Close()

	a := NewChessAgent(llm.NewClient(srv.URL, ""), Config{Color: "White", Model: "m"})
	mv, err := a.ProposeMove(context.Background(), newSnapshot(t))
	if err != nil {
		t.Fatalf("ProposeMove: %v", err)
	}
	if mv != "e2e4" {
		t.Errorf("move = %q, want e2e4", mv)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
}

func TestChessAgentPlainTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(textResponse(t, "I will open with g1f3, the knight."))
	}))
	defer srv.Close()

	a := NewChessAgent(llm.NewClient(srv.URL, ""), Config{Color: "White", Model: "m"})
	mv, err := a.ProposeMove(context.Background(), newSnapshot(t))
	if err != nil {
		t.Fatalf("ProposeMove: %v", err)
	}
	if mv != "g1f3" {
		t.Errorf("move = %q, want g1f3", mv)
	}
}

func TestChessAgentGivesUpAfterToolTurnLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(toolCallResponse(t, "available_moves", "{}"))
	}))
	defer srv.Close()

	a := NewChessAgent(llm.NewClient(srv.URL, ""), Config{Color: "Black", Model: "m"})
	if _, err := a.ProposeMove(context.Background(), newSnapshot(t)); !errors.Is(err, ErrNoMoveProposed) {
		t.Errorf("error = %v, want ErrNoMoveProposed", err)
	}
}

type stubMover struct {
	name  string
	move  string
	err   error
	delay time.Duration
}

func (s *stubMover) Name() string { return s.name }

func (s *stubMover) ProposeMove(ctx context.Context, _ game.Snapshot) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.move, s.err
}

func TestCallWithDeadlineReturnsResult(t *testing.T) {
	mv, err := CallWithDeadline(context.Background(), time.Second, &stubMover{move: "e2e4"}, newSnapshot(t))
	if err != nil {
		t.Fatalf("CallWithDeadline: %v", err)
	}
	if mv != "e2e4" {
		t.Errorf("move = %q, want e2e4", mv)
	}
}

func TestCallWithDeadlineTimesOut(t *testing.T) {
	start := time.Now()
	_, err := CallWithDeadline(context.Background(), 30*time.Millisecond,
		&stubMover{move: "e2e4", delay: 5 * time.Second}, newSnapshot(t))
	if !errors.Is(err, ErrMoveTimeout) {
		t.Fatalf("error = %v, want ErrMoveTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, expected prompt return", elapsed)
	}
}

func TestCallWithDeadlinePropagatesError(t *testing.T) {
	wantErr := errors.New("backend down")
	_, err := CallWithDeadline(context.Background(), time.Second, &stubMover{err: wantErr}, newSnapshot(t))
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestRandomMoverProposesLegalMove(t *testing.T) {
	snap := newSnapshot(t)
	legal := map[string]bool{}
	for _, m := range snap.LegalMoves {
		legal[m] = true
	}

	r := NewRandomMover("")
	for i := 0; i < 10; i++ {
		mv, err := r.ProposeMove(context.Background(), snap)
		if err != nil {
			t.Fatalf("ProposeMove: %v", err)
		}
		if !legal[mv] {
			t.Fatalf("move %q not legal", mv)
		}
	}
}
