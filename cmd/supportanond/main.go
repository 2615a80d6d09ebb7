// cmd/supportanond/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colebrumley/supportanon/internal/config"
	"github.com/colebrumley/supportanon/internal/daemon"
	"github.com/colebrumley/supportanon/internal/logging"
	"github.com/colebrumley/supportanon/internal/mcp"
	"github.com/colebrumley/supportanon/internal/service"
)

// envMCPAddress overrides mcp.listen_address for mcp-http-server.
const envMCPAddress = "SUPPORTANON_MCP_ADDRESS"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "mcp-server":
			runMCPServer(false)
			return
		case "mcp-http-server":
			runMCPServer(true)
			return
		case "daemon":
		default:
			fmt.Fprintf(os.Stderr, "unknown mode: %s (daemon, mcp-server or mcp-http-server)\n", os.Args[1])
			os.Exit(2)
		}
	}

	runDaemon()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if onSignal != nil {
			onSignal()
		}
		cancel()
	}()
	return ctx, cancel
}

func runMCPServer(overHTTP bool) {
	cfg, err := config.LoadGlobal(config.Path(""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the stdio transport, so logs go to stderr.
	logger := logging.NewLogger(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)

	ctx, cancel := signalContext(func() {
		if overHTTP {
			fmt.Fprintf(os.Stderr, "\nShutting down MCP HTTP server...\n")
		}
	})
	defer cancel()

	svc := service.New(cfg, logger)
	if err := svc.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing anonymization: %v\n", err)
		os.Exit(1)
	}
	server := mcp.NewServer(svc)
	defer server.Close()

	if overHTTP {
		addr := os.Getenv(envMCPAddress)
		if addr == "" {
			addr = cfg.MCP.ListenAddress
		}
		fmt.Fprintf(os.Stderr, "MCP HTTP server listening on %s\n", addr)
		err = server.RunHTTP(ctx, addr)
	} else {
		err = server.Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		server.Close()
		os.Exit(1)
	}
}

func runDaemon() {
	d := daemon.New(config.Path(""))

	ctx, cancel := signalContext(func() {
		fmt.Println("\nReceived shutdown signal")
	})
	defer cancel()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
		os.Exit(1)
	}
}
