package server

import (
	_ "embed"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/arena"
	"github.com/park285/llm-chess-arena/internal/obslog"
	"github.com/park285/llm-chess-arena/internal/render"
)

//go:embed assets/index.html
var indexHTML []byte

type Server struct {
	app      *fiber.App
	manager  *arena.Manager
	renderer render.BoardRenderer
	hub      *Hub
	layout   string
	logger   *zap.Logger
}

func New(manager *arena.Manager, layout string) *Server {
	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		manager:  manager,
		renderer: render.NewBoardRenderer(),
		hub:      NewHub(),
		layout:   layout,
		logger:   obslog.L().Named("server"),
	}
	s.routes()
	manager.OnUpdate(s.broadcastState)
	return s
}

func (s *Server) routes() {
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	s.app.Get("/", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(indexHTML)
	})

	api := s.app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/providers", s.handleProviders)
	api.Post("/control", s.handleControl)
	api.Get("/board.png", s.handleBoardPNG)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWS))
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App은 내부 fiber 앱. 테스트에서 app.Test로 사용.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) handleWS(c *websocket.Conn) {
	// 접속 직후 현재 상태부터 밀어줌. 전송은 허브 락 아래에서 일어남.
	payload, err := json.Marshal(s.stateDTO(s.manager.State()))
	if err != nil {
		s.logger.Warn("state marshal failed", zap.Error(err))
		c.Close()
		return
	}
	if err := s.hub.Join(c, payload); err != nil {
		c.Close()
		return
	}
	defer func() {
		s.hub.Unregister(c)
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcastState(st arena.MatchState) {
	payload, err := json.Marshal(s.stateDTO(st))
	if err != nil {
		s.logger.Warn("state marshal failed", zap.Error(err))
		return
	}
	s.hub.Broadcast(payload)
}
