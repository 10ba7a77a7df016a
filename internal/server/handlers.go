package server

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/arena"
	"github.com/park285/llm-chess-arena/internal/game"
	"github.com/park285/llm-chess-arena/internal/render"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.stateDTO(s.manager.State()))
}

func (s *Server) handleProviders(c *fiber.Ctx) error {
	return c.JSON(arenadto.ProvidersResponse{Providers: s.manager.Providers()})
}

func (s *Server) handleControl(c *fiber.Ctx) error {
	var req arenadto.ControlRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(arenadto.ErrorResponse{Error: "invalid request body"})
	}

	var st arena.MatchState
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "start":
		st = s.manager.Start()
	case "pause":
		st = s.manager.Pause()
	case "resume":
		st = s.manager.Resume()
	case "reset":
		var err error
		st, err = s.manager.Reset(req.White, req.Black)
		if err != nil {
			if errors.Is(err, arena.ErrUnknownProvider) {
				return c.Status(fiber.StatusBadRequest).JSON(arenadto.ErrorResponse{Error: err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(arenadto.ErrorResponse{Error: err.Error()})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(arenadto.ErrorResponse{Error: "unknown action: " + req.Action})
	}

	s.logger.Info("control applied",
		zap.String("action", req.Action),
		zap.String("phase", string(st.Snapshot.Phase)))
	return c.JSON(s.stateDTO(st))
}

func (s *Server) handleBoardPNG(c *fiber.Ctx) error {
	st := s.manager.State()
	snap := st.Snapshot

	g, err := arena.Reconstruct(snap.MovesUCI)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(arenadto.ErrorResponse{Error: err.Error()})
	}

	opts := render.Options{
		Header: fmt.Sprintf("%s vs %s", st.White, st.Black),
		Status: bannerText(snap, st.HaltErr),
		Turn:   turnText(snap),
	}
	if n := len(snap.Log); n > 0 {
		if uci := snap.Log[n-1].UCI; len(uci) >= 4 {
			opts.Highlight = &render.MoveHighlight{
				From: squareAt(uci[:2]),
				To:   squareAt(uci[2:4]),
			}
		}
	}

	png, err := s.renderer.RenderPNG(c.Context(), g.Position().Board(), opts)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(arenadto.ErrorResponse{Error: err.Error()})
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}

func (s *Server) stateDTO(st arena.MatchState) arenadto.StateResponse {
	snap := st.Snapshot
	moves := make([]arenadto.MoveEntry, len(snap.Log))
	for i, rec := range snap.Log {
		moves[i] = arenadto.MoveEntry{
			Number:      rec.Number,
			Color:       rec.Color,
			UCI:         rec.UCI,
			SAN:         rec.SAN,
			Description: rec.Description,
			PlayedAt:    rec.PlayedAt,
		}
	}
	return arenadto.StateResponse{
		MatchID: snap.SessionID,
		White:   st.White,
		Black:   st.Black,
		FEN:     snap.FEN,
		Turn:    snap.Turn,
		Phase:   string(snap.Phase),
		Status:  snap.Status,
		Error:   st.HaltErr,
		Moves:   moves,
		PGN:     snap.PGN,
		Layout:  s.layout,
	}
}

func bannerText(snap game.Snapshot, haltErr string) string {
	if haltErr != "" {
		return "Provider error"
	}
	return snap.Status
}

func turnText(snap game.Snapshot) string {
	switch snap.Phase {
	case game.PhaseOver:
		return "Game over"
	case game.PhasePaused:
		return "Paused"
	case game.PhaseNotStarted:
		return "Waiting to start"
	default:
		return snap.Turn + " to move"
	}
}

// squareAt은 "e2" 같은 좌표를 Square로 변환. 호출자는 길이 2를 보장.
func squareAt(s string) nchess.Square {
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1'))
}
