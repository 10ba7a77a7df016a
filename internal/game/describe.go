package game

import (
	"fmt"

	nchess "github.com/corentings/chess/v2"
)

// describeMove는 수 하나를 사람이 읽을 수 있는 한 줄로 만듦.
// 예: "Move 3: White moved knight from g1 to f3 [Nf3]"
func describeMove(number int, color nchess.Color, moved nchess.PieceType, mv *nchess.Move, san string) string {
	special := ""
	switch {
	case mv.Promo() != nchess.NoPieceType:
		special = fmt.Sprintf(" (promoted to %s)", pieceName(mv.Promo()))
	case mv.HasTag(nchess.KingSideCastle):
		special = " (Kingside Castle)"
	case mv.HasTag(nchess.QueenSideCastle):
		special = " (Queenside Castle)"
	case mv.HasTag(nchess.EnPassant):
		special = " (en passant)"
	}
	return fmt.Sprintf("Move %d: %s moved %s from %s to %s%s [%s]",
		number, color.Name(), pieceName(moved), mv.S1().String(), mv.S2().String(), special, san)
}

func pieceName(pt nchess.PieceType) string {
	switch pt {
	case nchess.Pawn:
		return "pawn"
	case nchess.Knight:
		return "knight"
	case nchess.Bishop:
		return "bishop"
	case nchess.Rook:
		return "rook"
	case nchess.Queen:
		return "queen"
	case nchess.King:
		return "king"
	default:
		return "piece"
	}
}
