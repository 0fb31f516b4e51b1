// Membank: Memory Bank MCP Server
//
// An MCP server that gives AI coding assistants (Claude Code, Cursor,
// VS Code Copilot, Cline) a persistent project memory: six structured
// markdown documents served over SSE with a security-gated update path.
//
// Usage:
//
//	membankd serve               # Start the server on the configured port
//	membankd serve -c path.yaml  # Start with an explicit config file
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"membank/internal/config"
	"membank/internal/host"
	"membank/internal/logging"
	membankserver "membank/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("membankd v%s\n", membankserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run(args []string) error {
	configPath := defaultConfigPath()
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a path argument", args[i])
			}
			i++
			configPath = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	opts, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewAppLogger()
	if opts.Verbose {
		logger = logging.NewVerboseLogger()
	}

	srv, cleanup, err := membankserver.New(opts, host.NewLoggerHost(logger))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	return srv.Stop(ctx)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "membank.yaml"
	}
	return home + "/.membank/config.yaml"
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Membank v%s — Memory Bank MCP Server

Usage:
  membankd serve [-c config.yaml]   Start the server
  membankd version                  Print the version

Endpoints:
  GET  /sse        SSE stream (one active session at a time)
  POST /messages   JSON-RPC requests; responses arrive on the stream
  GET  /health     Liveness probe

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "membank": {
        "url": "http://127.0.0.1:7331/sse"
      }
    }
  }
`, membankserver.Version)
}
