package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"chatflow/completion"
	"chatflow/engine"
	"chatflow/httpclient"
	"chatflow/scenario"
	"chatflow/server"
	"chatflow/session"
)

var serveOpts struct {
	addr        string
	scenarioDir string
	redisAddr   string
	redisDB     int
	openAIModel string
	turnTimeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "chatflow",
	Short: "Chatflow - scenario chat engine",
	Long:  `Chatflow runs conversational scenario graphs and serves them over HTTP.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load scenarios and serve the session API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveOpts.scenarioDir, "scenarios", "scenarios", "directory of scenario definitions")
	serveCmd.Flags().StringVar(&serveOpts.redisAddr, "redis-addr", "", "redis address for session storage (empty = in-memory)")
	serveCmd.Flags().IntVar(&serveOpts.redisDB, "redis-db", 0, "redis database")
	serveCmd.Flags().StringVar(&serveOpts.openAIModel, "openai-model", "", "model for llm nodes (key from OPENAI_API_KEY)")
	serveCmd.Flags().DurationVar(&serveOpts.turnTimeout, "turn-timeout", 60*time.Second, "deadline for a single turn")
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	registry, err := scenario.LoadDir(serveOpts.scenarioDir)
	if err != nil {
		return fmt.Errorf("error loading scenarios: %w", err)
	}
	logger.Info("scenarios loaded", "count", len(registry.IDs()), "ids", registry.IDs())

	var store session.Store
	if serveOpts.redisAddr != "" {
		store = session.NewRedisStore(serveOpts.redisAddr, os.Getenv("REDIS_PASSWORD"), serveOpts.redisDB)
		logger.Info("using redis session store", "addr", serveOpts.redisAddr)
	} else {
		store = session.NewMemoryStore()
		logger.Info("using in-memory session store")
	}

	var completer completion.Completer
	if os.Getenv("OPENAI_API_KEY") != "" {
		completer = completion.NewOpenAI("", serveOpts.openAIModel)
		logger.Info("llm nodes backed by openai", "model", serveOpts.openAIModel)
	} else {
		logger.Warn("OPENAI_API_KEY not set, llm nodes will fail")
		completer = completion.CompleterFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("no completion provider configured")
		})
	}

	transport := httpclient.New(httpclient.Config{Timeout: 30 * time.Second})
	eng := engine.New(logger, transport, completer)
	svc := engine.NewService(logger, eng, registry, store,
		engine.WithTurnTimeout(serveOpts.turnTimeout))

	g := gin.Default()
	server.New(logger, svc).Register(g)

	logger.Info("listening", "addr", serveOpts.addr)
	return g.Run(serveOpts.addr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
