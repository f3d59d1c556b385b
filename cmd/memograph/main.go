// Command memograph serves the memory store over MCP stdio.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/kataras/golog"

	mcpadapter "github.com/smallnest/memograph/adapter/mcp"
	"github.com/smallnest/memograph/log"
	"github.com/smallnest/memograph/memory"
)

func main() {
	var (
		backendURL    = flag.String("backend", envOr("MEMOGRAPH_BACKEND_URL", memory.DefaultBackendURL), "key-value backend connection string")
		workspacePath = flag.String("workspace", envOr("MEMOGRAPH_WORKSPACE", ""), "workspace path, defaults to the working directory")
		mode          = flag.String("mode", envOr("MEMOGRAPH_MODE", string(memory.ModeIsolated)), "workspace mode: isolated, hybrid, or global")
		verbose       = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	// MCP traffic owns stdout, so all logging goes to stderr through golog.
	glog := golog.New()
	glog.SetOutput(os.Stderr)
	glog.SetPrefix("[memograph] ")
	level := log.LogLevelInfo
	if *verbose {
		level = log.LogLevelDebug
	}
	logger := log.NewGologLoggerWithLevel(glog, level)
	log.SetDefaultLogger(logger)

	cfg := memory.Config{
		BackendURL:    *backendURL,
		WorkspacePath: *workspacePath,
		Mode:          memory.Mode(*mode),
		LLMAPIKey:     os.Getenv("OPENAI_API_KEY"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := mcpadapter.NewServer(ctx, cfg)
	if err != nil {
		logger.Error("startup failed: %v", err)
		os.Exit(1)
	}

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server stopped: %v", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
