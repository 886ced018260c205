// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/hshokrig/chicken-vault/internal/ai"
	"github.com/hshokrig/chicken-vault/internal/auth"
	"github.com/hshokrig/chicken-vault/internal/cache"
	"github.com/hshokrig/chicken-vault/internal/config"
	"github.com/hshokrig/chicken-vault/internal/engine"
	"github.com/hshokrig/chicken-vault/internal/handlers"
	"github.com/hshokrig/chicken-vault/internal/history"
	"github.com/hshokrig/chicken-vault/internal/middleware"
	"github.com/hshokrig/chicken-vault/internal/models"
	"github.com/hshokrig/chicken-vault/internal/workbook"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	adapter, err := workbook.New(cfg.WorkbookPath, logger)
	if err != nil {
		logger.Fatalf("open workbook at %s: %v", cfg.WorkbookPath, err)
	}

	gameCfg := models.GameConfig{
		Rounds:           cfg.Rounds,
		InvestigationSec: cfg.InvestigationSec,
		ScoringSec:       cfg.ScoringSec,
		VaultStart:       cfg.VaultStart,
		InsiderEnabled:   cfg.InsiderEnabled,
		PollIntervalSec:  cfg.PollIntervalSec,
		WorkbookPath:     cfg.WorkbookPath,
		WriteAcks:        cfg.WriteAcks,
	}
	session, err := engine.NewSession(gameCfg, adapter, logger)
	if err != nil {
		logger.Fatalf("session config: %v", err)
	}
	defer session.Close()

	var transcriber ai.Transcriber
	if cfg.OpenAIKey != "" {
		client := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL)
		session.Analyzer = ai.NewAnalyzer(client, cfg.OpenAIModel, logger)
		transcriber = client
		logger.Infof("question analyzer enabled (model %s)", cfg.OpenAIModel)
	} else {
		logger.Info("OPENAI_API_KEY not set; manual question entry only")
	}

	if cfg.RedisAddr != "" {
		pub, err := cache.NewPublisher(cfg.RedisAddr, cfg.RedisDB, "")
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer pub.Close()
		session.Recorder = pub
		logger.Infof("action queue enabled on %s", cfg.RedisAddr)
	}

	if cfg.DatabaseURL != "" {
		store, err := history.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer store.Close()
		session.Rounds = store
		logger.Info("round history store enabled")
	}

	keys, err := auth.NewKeys(cfg.TokenExpire)
	if err != nil {
		logger.Fatalf("auth keys: %v", err)
	}
	var dealerHash string
	if cfg.DealerPassphrase != "" {
		dealerHash, err = auth.HashPassphrase(cfg.DealerPassphrase)
		if err != nil {
			logger.Fatalf("hash dealer passphrase: %v", err)
		}
	} else {
		logger.Warn("DEALER_PASS not set; dealer endpoints are unauthenticated")
	}

	srv := handlers.NewAPIServer(session, keys, dealerHash, logger)
	srv.Transcriber = transcriber

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	mux.HandleFunc("/session/login", srv.LoginHandler)
	mux.HandleFunc("/session/state", srv.StateHandler)
	mux.Handle("/session/ws", logged(http.HandlerFunc(srv.WSHandler)))

	dealer := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, logged(srv.RequireDealer(h)))
	}
	dealer("/session/players/add", srv.AddPlayerHandler)
	dealer("/session/players/update", srv.UpdatePlayerHandler)
	dealer("/session/players/remove", srv.RemovePlayerHandler)
	dealer("/session/players/reorder", srv.ReorderPlayersHandler)
	dealer("/session/config", srv.UpdateConfigHandler)
	dealer("/session/preflight", srv.PreflightHandler)
	dealer("/session/workbook/init", srv.InitWorkbookHandler)
	dealer("/session/start", srv.StartGameHandler)
	dealer("/session/reset", srv.ResetHandler)
	dealer("/session/start-real", srv.StartRealGameHandler)
	dealer("/session/demo", srv.DemoHandler)
	dealer("/session/card", srv.SetCardHandler)
	dealer("/session/insider", srv.SetInsiderHandler)
	dealer("/session/investigation/start", srv.StartInvestigationHandler)
	dealer("/session/question/resolve", srv.ResolveQuestionHandler)
	dealer("/session/question/analyze", srv.AnalyzeQuestionHandler)
	dealer("/session/vault/call", srv.CallVaultHandler)
	dealer("/session/round/next", srv.NextRoundHandler)

	addr := ":" + cfg.Port
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		logger.Info("shutting down")
		httpSrv.Shutdown(context.Background())
	}()

	logger.Infof("Running on %s (workbook %s)", addr, cfg.WorkbookPath)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server exited: %v", err)
	}
}
