package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type MoveHighlight struct {
	From nchess.Square
	To   nchess.Square
}

type Options struct {
	Highlight *MoveHighlight
	// HUD 상단 제목. 보통 "white vs black" 대진 표기.
	Header string
	// 상태 배너. "Check!" 같은 문자열. 비면 패널 생략.
	Status string
	// 차례 표기. "White to move" 등.
	Turn string
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error)
}

type svgBoardRenderer struct{}

func NewBoardRenderer() BoardRenderer {
	return &svgBoardRenderer{}
}

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}

	const (
		squareSize    = 72
		boardSquares  = 8
		boardSize     = squareSize * boardSquares
		sideMargin    = 36
		topMargin     = 110
		bottomMargin  = 36
		titleHeight   = 40
		bannerHeight  = 32
		gapPanels     = 14
		gapToBoard    = 22
		panelRadius   = 12
		panelPaddingX = 24
		titleMinWidth = 320
		turnMinWidth  = 140
		shadowOffsetY = 6
	)

	totalWidth := boardSize + sideMargin*2
	totalHeight := boardSize + topMargin + bottomMargin
	boardOrigin := image.Point{X: sideMargin, Y: topMargin}
	boardRect := image.Rect(
		boardOrigin.X,
		boardOrigin.Y,
		boardOrigin.X+boardSize,
		boardOrigin.Y+boardSize,
	)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawHUD(img, opts, boardRect, panelRadius, titleHeight, bannerHeight,
		gapPanels, gapToBoard, panelPaddingX, titleMinWidth, turnMinWidth, shadowOffsetY)
	drawSquares(img, squareSize, boardOrigin)
	drawHighlight(img, board, opts.Highlight, squareSize, boardOrigin)
	if err := drawPieces(img, board, squareSize, boardOrigin); err != nil {
		return nil, err
	}
	drawCoordinates(img, squareSize, boardOrigin, sideMargin)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return pngBuf.Bytes(), nil
}

var (
	backgroundColor         = color.NRGBA{R: 22, G: 24, B: 35, A: 255}
	lightSquare             = color.RGBA{233, 207, 163, 255}
	darkSquare              = color.RGBA{187, 136, 96, 255}
	whiteMoveHighlightFill  = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveHighlightArrow = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	hudPanelColor           = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTurnPanelColor       = color.NRGBA{R: 32, G: 35, B: 52, A: 245}
	hudBannerColor          = color.NRGBA{R: 64, G: 36, B: 40, A: 250}
	hudShadowColor          = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary          = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTurnTextColor        = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	coordinateTextColor     = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

func hudFace() font.Face { return basicfont.Face7x13 }

func drawSquares(dst imagedraw.Image, squareSize int, origin image.Point) {
	ranks := []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	files := []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}

	for row, rank := range ranks {
		for col, file := range files {
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			sq := nchess.NewSquare(file, rank)
			clr := squareColor(sq)
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, squareSize int, origin image.Point) error {
	boardMap := board.SquareMap()
	ranks := []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	files := []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}

	for row, rank := range ranks {
		for col, file := range files {
			sq := nchess.NewSquare(file, rank)
			piece := boardMap[sq]
			if piece == nchess.NoPiece {
				continue
			}
			img, err := sprites.get(piece, squareSize)
			if err != nil {
				return err
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), img, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

// drawHighlight는 마지막 수를 표시. 백은 출발/도착 칸 오버레이, 흑은 화살표.
func drawHighlight(img *image.RGBA, board *nchess.Board, highlight *MoveHighlight, squareSize int, origin image.Point) {
	if highlight == nil {
		return
	}
	moverColor := nchess.NoColor
	if piece := board.Piece(highlight.To); piece != nchess.NoPiece {
		moverColor = piece.Color()
	}
	if moverColor == nchess.Black {
		drawArrow(img, highlight.From, highlight.To, squareSize, origin, blackMoveHighlightArrow)
		return
	}
	drawSquareOverlay(img, highlight.From, squareSize, origin, whiteMoveHighlightFill)
	drawSquareOverlay(img, highlight.To, squareSize, origin, whiteMoveHighlightFill)
}

func drawHUD(
	img *image.RGBA,
	opts Options,
	boardRect image.Rectangle,
	radius,
	titleHeight,
	bannerHeight,
	gapPanels,
	gapToBoard,
	panelPaddingX,
	titleMinWidth,
	turnMinWidth,
	shadowOffsetY int,
) {
	if img == nil {
		return
	}

	drawer := &font.Drawer{Dst: img, Face: hudFace()}

	title := strings.TrimSpace(opts.Header)
	if title == "" {
		title = "LLM Arena"
	}
	turnText := strings.TrimSpace(opts.Turn)
	if turnText == "" {
		turnText = "Turn"
	}
	banner := strings.TrimSpace(opts.Status)

	turnBottom := boardRect.Min.Y - gapToBoard
	turnTop := turnBottom - bannerHeight
	titleBottom := turnTop - gapPanels
	titleTop := titleBottom - titleHeight

	titleWidth := titleMinWidth
	if measured := drawer.MeasureString(title).Round() + panelPaddingX*2; measured > titleWidth {
		titleWidth = measured
	}
	if max := boardRect.Dx(); titleWidth > max {
		titleWidth = max
	}
	turnWidth := turnMinWidth
	if measured := drawer.MeasureString(turnText).Round() + panelPaddingX*2; measured > turnWidth {
		turnWidth = measured
	}

	titleRect := image.Rect(boardRect.Min.X, titleTop, boardRect.Min.X+titleWidth, titleBottom)
	turnRect := image.Rect(boardRect.Min.X, turnTop, boardRect.Min.X+turnWidth, turnBottom)

	drawRoundedPanel(img, titleRect.Add(image.Pt(0, shadowOffsetY)), radius, hudShadowColor)
	drawRoundedPanel(img, turnRect.Add(image.Pt(0, shadowOffsetY)), radius, hudShadowColor)
	drawRoundedPanel(img, titleRect, radius, hudPanelColor)
	drawRoundedPanel(img, turnRect, radius, hudTurnPanelColor)

	title = truncateWithEllipsis(hudFace(), title, titleRect.Dx()-panelPaddingX*2)
	drawCenteredString(drawer, titleRect, title, hudTextPrimary)
	drawCenteredString(drawer, turnRect, turnText, hudTurnTextColor)

	if banner != "" {
		bannerWidth := drawer.MeasureString(banner).Round() + panelPaddingX*2
		if bannerWidth > boardRect.Dx() {
			bannerWidth = boardRect.Dx()
		}
		bannerRect := image.Rect(
			boardRect.Max.X-bannerWidth,
			turnTop,
			boardRect.Max.X,
			turnBottom,
		)
		drawRoundedPanel(img, bannerRect.Add(image.Pt(0, shadowOffsetY)), radius, hudShadowColor)
		drawRoundedPanel(img, bannerRect, radius, hudBannerColor)
		banner = truncateWithEllipsis(hudFace(), banner, bannerRect.Dx()-panelPaddingX*2)
		drawCenteredString(drawer, bannerRect, banner, hudTextPrimary)
	}
}

func drawSquareOverlay(img *image.RGBA, sq nchess.Square, squareSize int, origin image.Point, clr color.Color) {
	if img == nil {
		return
	}
	rect := squareRect(sq, squareSize, origin)
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawArrow(img *image.RGBA, from, to nchess.Square, squareSize int, origin image.Point, clr color.Color) {
	if img == nil || from == to {
		return
	}
	startRect := squareRect(from, squareSize, origin)
	endRect := squareRect(to, squareSize, origin)
	start := image.Point{
		X: startRect.Min.X + squareSize/2,
		Y: startRect.Min.Y + squareSize/2,
	}
	end := image.Point{
		X: endRect.Min.X + squareSize/2,
		Y: endRect.Min.Y + squareSize/2,
	}

	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}

	dirX := dx / length
	dirY := dy / length
	perpX := -dirY
	perpY := dirX

	baseLength := length - float64(squareSize)*0.45
	if baseLength < float64(squareSize)*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := float64(squareSize) * 0.18
	headWidth := float64(squareSize) * 0.32

	baseX := float64(start.X) + dirX*baseLength
	baseY := float64(start.Y) + dirY*baseLength

	shaftStartLeft := pointF{X: float64(start.X) - perpX*halfWidth, Y: float64(start.Y) - perpY*halfWidth}
	shaftStartRight := pointF{X: float64(start.X) + perpX*halfWidth, Y: float64(start.Y) + perpY*halfWidth}
	shaftEndLeft := pointF{X: baseX - perpX*halfWidth, Y: baseY - perpY*halfWidth}
	shaftEndRight := pointF{X: baseX + perpX*halfWidth, Y: baseY + perpY*halfWidth}

	fillQuad(img, shaftStartLeft, shaftStartRight, shaftEndRight, shaftEndLeft, clr)

	headLeft := pointF{X: baseX - perpX*headWidth/2, Y: baseY - perpY*headWidth/2}
	headRight := pointF{X: baseX + perpX*headWidth/2, Y: baseY + perpY*headWidth/2}
	headTip := pointF{X: float64(end.X), Y: float64(end.Y)}

	fillTriangleF(img, headTip, headLeft, headRight, clr)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}

	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}

	ellipsis := "..."
	ellipsisWidth := drawer.MeasureString(ellipsis).Round()
	if ellipsisWidth > maxWidth {
		return ""
	}

	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}

	return ellipsis
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	if radius < 0 {
		radius = 0
	}
	maxRadius := rect.Dx() / 2
	if r := rect.Dy() / 2; r < maxRadius {
		maxRadius = r
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	fill := image.NewUniform(clr)
	if radius == 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}

	core := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y)
	if core.Dx() > 0 {
		imagedraw.Draw(img, core, fill, image.Point{}, imagedraw.Over)
	}

	leftRect := image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius)
	if leftRect.Dx() > 0 {
		imagedraw.Draw(img, leftRect, fill, image.Point{}, imagedraw.Over)
	}

	rightRect := image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius)
	if rightRect.Dx() > 0 {
		imagedraw.Draw(img, rightRect, fill, image.Point{}, imagedraw.Over)
	}

	corners := []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	}
	for _, center := range corners {
		drawDisc(img, center, radius, clr)
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if drawer == nil {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCoordinates(dst *image.RGBA, squareSize int, origin image.Point, margin int) {
	drawer := &font.Drawer{
		Dst:  dst,
		Face: hudFace(),
		Src:  image.NewUniform(coordinateTextColor),
	}

	ranks := []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	files := []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}

	ascent := hudFace().Metrics().Ascent.Ceil()
	boardEndY := origin.Y + len(ranks)*squareSize

	for row, rank := range ranks {
		rankBaseline := origin.Y + row*squareSize + squareSize/2 + ascent/2
		drawCenteredText(drawer, rank.String(), origin.X-margin/2, rankBaseline)
	}
	for col, file := range files {
		fileCenter := origin.X + col*squareSize + squareSize/2
		drawCenteredText(drawer, file.String(), fileCenter, boardEndY+ascent+4)
	}
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	if radius <= 0 {
		blendPixel(img, center.X, center.Y, clr)
		return
	}
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			blendPixel(img, center.X+x, center.Y+y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if img == nil {
		return
	}
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}

	sr, sg, sb, sa := clr.RGBA()
	srcA := float64(sa) / 65535.0
	if srcA <= 0 {
		return
	}
	srcR := float64(sr) / 65535.0
	srcG := float64(sg) / 65535.0
	srcB := float64(sb) / 65535.0

	dst := img.RGBAAt(x, y)
	dstA := float64(dst.A) / 255.0

	var dstR, dstG, dstB float64
	if dstA > 0 {
		inv := 1.0 / dstA
		dstR = float64(dst.R) / 255.0 * inv
		dstG = float64(dst.G) / 255.0 * inv
		dstB = float64(dst.B) / 255.0 * inv
	}

	outA := srcA + dstA*(1-srcA)
	if outA <= 0 {
		img.SetRGBA(x, y, color.RGBA{})
		return
	}

	outR := (srcR*srcA + dstR*dstA*(1-srcA)) / outA
	outG := (srcG*srcA + dstG*dstA*(1-srcA)) / outA
	outB := (srcB*srcA + dstB*dstA*(1-srcA)) / outA

	img.SetRGBA(x, y, color.RGBA{
		R: floatToUint8(outR * outA * 255.0),
		G: floatToUint8(outG * outA * 255.0),
		B: floatToUint8(outB * outA * 255.0),
		A: floatToUint8(outA * 255.0),
	})
}

func floatToUint8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func squareRect(sq nchess.Square, squareSize int, origin image.Point) image.Rectangle {
	row := 7 - int(sq.Rank())
	col := int(sq.File())
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func pointInTriangleFloat(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	gamma := 1 - alpha - beta
	return alpha >= 0 && beta >= 0 && gamma >= 0
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func fillQuad(img *image.RGBA, p0, p1, p2, p3 pointF, clr color.Color) {
	fillTriangleF(img, p0, p1, p2, clr)
	fillTriangleF(img, p0, p2, p3, clr)
}

func fillTriangleF(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(minFloat(a.X, minFloat(b.X, c.X))))
	maxX := int(math.Ceil(maxFloat(a.X, maxFloat(b.X, c.X))))
	minY := int(math.Floor(minFloat(a.Y, minFloat(b.Y, c.Y))))
	maxY := int(math.Ceil(maxFloat(a.Y, maxFloat(b.Y, c.Y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if pointInTriangleFloat(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

type pointF struct {
	X float64
	Y float64
}
