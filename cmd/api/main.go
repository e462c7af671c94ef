package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatlab/backend/internal/config"
	"github.com/zhouzirui/chatlab/backend/internal/handler"
	chatservice "github.com/zhouzirui/chatlab/backend/internal/service/chat"
	"github.com/zhouzirui/chatlab/backend/internal/service/completion"
	"github.com/zhouzirui/chatlab/backend/internal/service/record"
	"github.com/zhouzirui/chatlab/backend/internal/service/turn"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	primary, err := cfg.AI.NewChatModel(ctx, cfg.AI.PrimaryModel)
	if err != nil {
		log.Fatalf("failed to initialize primary chat model: %v", err)
	}
	fallback, err := cfg.AI.NewChatModel(ctx, cfg.AI.FallbackModel)
	if err != nil {
		log.Fatalf("failed to initialize fallback chat model: %v", err)
	}

	gateway := completion.NewGateway(
		completion.Model{Name: cfg.AI.PrimaryModel, Client: primary},
		completion.Model{Name: cfg.AI.FallbackModel, Client: fallback},
		completion.Config{},
		logger,
	)

	chatSvc := chatservice.NewService(rand.New(rand.NewSource(time.Now().UnixNano())))
	recorder := record.NewCSVLogger(cfg.Study.LogDir, cfg.Study.LockTimeout, logger)

	scheduler := turn.New(turn.Deps{
		Sessions: chatSvc,
		Gateway:  gateway,
		Recorder: recorder,
		Config:   cfg.Study,
		Logger:   logger,
	})

	router := handler.NewRouter(chatSvc, scheduler, logger)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chatlab backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
