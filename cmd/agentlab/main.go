package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/agents"
	"github.com/nidhogg/agentlab/internal/api"
	"github.com/nidhogg/agentlab/internal/checkpoint"
	"github.com/nidhogg/agentlab/internal/config"
	"github.com/nidhogg/agentlab/internal/graph"
	"github.com/nidhogg/agentlab/internal/notify"
	"github.com/nidhogg/agentlab/internal/provision"
	"github.com/nidhogg/agentlab/internal/rag"
	"github.com/nidhogg/agentlab/internal/secrets"
	"github.com/nidhogg/agentlab/internal/store"
	"github.com/nidhogg/agentlab/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/agentlab.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("path", cfgPath))

	ctx := context.Background()

	st, err := store.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx, "public"); err != nil {
		logger.Fatal("schema bootstrap failed", zap.Error(err))
	}

	vaultStore, err := secrets.New(secrets.Config{
		Address: cfg.Vault.Address,
		Token:   cfg.Vault.Token,
		Mount:   cfg.Vault.Mount,
	}, logger)
	if err != nil {
		logger.Fatal("vault client init failed", zap.Error(err))
	}

	// Agent turns survive a restart only with durable checkpoints; fall
	// back to in-memory when the checkpoint database is unreachable.
	var checkpointer graph.Checkpointer
	saver, err := checkpoint.New(ctx, cfg.Database.Checkpoints.DSN, logger)
	if err != nil {
		logger.Warn("checkpoint db unavailable, using in-memory checkpoints", zap.Error(err))
		checkpointer = graph.NewMemoryCheckpointer()
	} else {
		checkpointer = saver
		defer saver.Close()
	}

	var notifier *notify.Notifier
	n, err := notify.New(cfg.Database.Redis.URL, cfg.Database.Redis.Channel, logger)
	if err != nil {
		logger.Warn("redis unavailable, running without task updates", zap.Error(err))
	} else {
		notifier = n
		defer notifier.Close()
	}

	qdrant, err := vectorstore.NewClient(vectorstore.QdrantConfig{
		Host: cfg.Database.Qdrant.Host,
		Port: cfg.Database.Qdrant.Port,
	})
	if err != nil {
		logger.Fatal("qdrant client init failed", zap.Error(err))
	}
	defer qdrant.Close()
	documents := rag.NewDocumentRepository(qdrant, logger)

	provisioner := provision.New(st, vaultStore, logger)
	runtime := agents.NewRuntime(st, provisioner, documents, notifier, checkpointer, cfg, logger)
	registry := agents.NewRegistry(runtime)

	var feed api.ProgressFeed
	if notifier != nil {
		feed = notifier
	}
	handler := api.NewHandler(st, vaultStore, registry, feed, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}
	go func() {
		logger.Info("agentlab listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if level == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
