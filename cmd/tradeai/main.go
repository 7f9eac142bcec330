package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"TradeAi/internal/chatbot"
	"TradeAi/internal/config"
)

func main() {
	var (
		configPath  string
		backendName string
		threadID    string
		debug       bool
		ollamaModel string
		dbPath      string
	)

	flag.StringVar(&configPath, "config", "", "Path to a TOML config file")
	flag.StringVar(&backendName, "backend", config.BackendOllama, "Answer backend (ollama|anthropic|remote)")
	flag.StringVar(&threadID, "thread-id", "", "Load existing thread by ID")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&ollamaModel, "ollama-model", "llama3:latest", "Ollama model specification (format: model:version)")
	flag.StringVar(&dbPath, "db", "tradeai.db", "SQLite database for local backends")

	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// flags given on the command line win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = backendName
		case "thread-id":
			cfg.ThreadID = threadID
		case "debug":
			cfg.Debug = debug
		case "ollama-model":
			cfg.OllamaModel = ollamaModel
		case "db":
			cfg.DBPath = dbPath
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	bot, err := chatbot.NewChatBot(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize chatbot: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
