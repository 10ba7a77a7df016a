package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var spriteFS embed.FS

type spriteKey struct {
	piece nchess.Piece
	size  int
}

// spriteBank는 기물 스프라이트의 크기별 래스터 캐시.
type spriteBank struct {
	mu    sync.RWMutex
	cache map[spriteKey]image.Image
}

var sprites = &spriteBank{cache: make(map[spriteKey]image.Image)}

// get은 기물 스프라이트를 요청 크기로 래스터라이즈. 같은 조합은 캐시에서 반환.
func (b *spriteBank) get(piece nchess.Piece, size int) (image.Image, error) {
	key := spriteKey{piece: piece, size: size}
	b.mu.RLock()
	img, ok := b.cache[key]
	b.mu.RUnlock()
	if ok {
		return img, nil
	}

	img, err := rasterizeSprite(piece, size)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.cache[key] = img
	b.mu.Unlock()
	return img, nil
}

func rasterizeSprite(piece nchess.Piece, size int) (image.Image, error) {
	path := spritePath(piece)
	data, err := spriteFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sprite %s: %w", path, err)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(normalizeSVGStyles(data)))
	if err != nil {
		return nil, fmt.Errorf("parse sprite %s: %w", path, err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)
	return img, nil
}

var pieceLetters = map[nchess.PieceType]string{
	nchess.King:   "K",
	nchess.Queen:  "Q",
	nchess.Rook:   "R",
	nchess.Bishop: "B",
	nchess.Knight: "N",
	nchess.Pawn:   "P",
}

func spritePath(piece nchess.Piece) string {
	side := "b"
	if piece.Color() == nchess.White {
		side = "w"
	}
	return "assets/pieces/" + side + pieceLetters[piece.Type()] + ".svg"
}

// normalizeSVGStyles는 래스터라이저가 못 읽는 헐거운 스타일 표기를 정리.
func normalizeSVGStyles(svg []byte) []byte {
	out := svg
	for _, r := range [][2]string{
		{"fill:000000", "fill:#000000"},
		{"fill: 000000", "fill:#000000"},
		{"stroke: 000000", "stroke:#000000"},
		{"fill: #", "fill:#"},
		{"stroke: #", "stroke:#"},
		{"stop-color: #", "stop-color:#"},
	} {
		out = bytes.ReplaceAll(out, []byte(r[0]), []byte(r[1]))
	}
	return out
}
