package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/taskrelay/taskrelay/internal/api"
	"github.com/taskrelay/taskrelay/internal/backend"
	"github.com/taskrelay/taskrelay/internal/config"
	"github.com/taskrelay/taskrelay/internal/dispatch"
	"github.com/taskrelay/taskrelay/internal/journal"
	"github.com/taskrelay/taskrelay/internal/lease"
	"github.com/taskrelay/taskrelay/internal/log"
	"github.com/taskrelay/taskrelay/internal/store"
	"github.com/taskrelay/taskrelay/internal/stream"
	"github.com/taskrelay/taskrelay/internal/version"
	"github.com/taskrelay/taskrelay/internal/webhook"
	"github.com/taskrelay/taskrelay/internal/workspace"
)

const drainTimeout = 30 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Println(version.Info())
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "run":
			if err := run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
			printHelp()
			os.Exit(1)
		}
	}
	printHelp()
}

func run(args []string) error {
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := runCmd.String("config", "", "path to config.toml")
	_ = runCmd.Parse(args)

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger := log.GetLogger()

	jnl, err := journal.New(filepath.Join(cfg.DataDir, "journal.db"))
	if err != nil {
		return fmt.Errorf("initializing journal: %w", err)
	}
	defer jnl.Close()

	client := store.NewHTTPClient(cfg.Store.BaseURL, cfg.Store.Token, cfg.Store.DatabaseID)
	gw := store.NewGateway(client)

	// The store must be reachable at startup; anything after this is
	// per-task error handling, never fatal.
	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := gw.QueryTasks(startupCtx, []store.Status{store.StatusNotStarted}, 1); err != nil {
		cancel()
		return fmt.Errorf("document store unreachable: %w", err)
	}
	cancel()

	leases := lease.NewManager(cfg.MaxConcurrentTasks, cfg.LeaseExpiry())
	provisioner := workspace.NewGitWorktree(cfg.RepoPath, cfg.WorkspaceRoot)
	backends := backend.NewRegistry(cfg.AnthropicAPIKey)
	streams := stream.NewManager()
	notifier := webhook.NewNotifier(cfg.SlackWebhook, cfg.DiscordWebhook)

	dispatcher := dispatch.New(cfg, gw, leases, provisioner, backends, jnl, streams, notifier)
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}

	var srv *http.Server
	if cfg.APIPort > 0 {
		server := api.NewServer(jnl, leases, streams)
		srv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.APIPort),
			Handler: server.Router(),
		}
		go func() {
			logger.Infof("observation API listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				logger.Errorf("api server error: %v", err)
			}
		}()
	}

	logger.Infof("%s started, store database %s", version.Info(), cfg.Store.DatabaseID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	dispatcher.Stop(drainTimeout)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

func printHelp() {
	fmt.Println(`taskrelay - Discover tasks in a document store and delegate them to Claude backends

Usage:
  taskrelay run             Run the dispatcher daemon
  taskrelay version         Show version information
  taskrelay help            Show this help message

Run Options:
  --config                  Path to config.toml (default: ~/.taskrelay/config.toml)

Environment Variables:
  TASKRELAY_DATA            Override data directory (default: ~/.taskrelay)
  TASKRELAY_STORE_TOKEN     Document store API token
  ANTHROPIC_API_KEY         Enables the direct API backend
  LOG_LEVEL                 DEBUG, INFO, WARN, or ERROR`)
}
