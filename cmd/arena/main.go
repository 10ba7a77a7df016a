package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/arena"
	appcfg "github.com/park285/llm-chess-arena/internal/config"
	"github.com/park285/llm-chess-arena/internal/obslog"
	"github.com/park285/llm-chess-arena/internal/server"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	providers, err := appcfg.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		log.Fatalf("providers error: %v", err)
	}

	mgr, err := arena.NewManager(cfg, providers)
	if err != nil {
		log.Fatalf("arena init error: %v", err)
	}

	// 선택 인프라. 없으면 메모리만으로 돌아감.
	if cfg.RedisURL != "" {
		store, err := arena.NewStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("match store init error: %v", err)
		}
		defer store.Close()
		mgr.AttachStore(store)

		// 끝나지 않은 최근 대국이 있으면 일시정지 상태로 이어받음.
		if _, err := mgr.RestoreLatest(context.Background()); err != nil {
			obslog.L().Warn("match restore failed", zap.Error(err))
		}
	}
	if cfg.DatabaseURL != "" {
		repo, err := arena.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("match repo init error: %v", err)
		}
		defer repo.Close()
		mgr.AttachRepository(repo)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go mgr.Run(ctx)

	srv := server.New(mgr, cfg.UILayout)
	go func() {
		if err := srv.Listen(cfg.ListenAddr); err != nil {
			obslog.L().Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	_ = srv.Shutdown()
}
