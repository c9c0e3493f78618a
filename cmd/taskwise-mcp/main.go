// Command taskwise-mcp serves one user's tasks as MCP tools over stdio.
//
// Usage:
//
//	taskwise-mcp -config taskwise.yaml
//
// The owning user comes from mcp.user_id (TASKWISE_MCP__USER_ID). Logs go to
// stderr; stdout carries the protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"taskwise/internal/config"
	"taskwise/internal/live"
	"taskwise/internal/logging"
	"taskwise/internal/mcptools"
	"taskwise/internal/repository"
	"taskwise/internal/service"
)

func main() {
	configPath := flag.String("config", "taskwise.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	// the MCP binary never talks to Telegram
	if os.Getenv("TASKWISE_TELEGRAM__ENABLED") == "" {
		_ = os.Setenv("TASKWISE_TELEGRAM__ENABLED", "false")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.MCP.UserID == "" {
		fmt.Fprintln(os.Stderr, "mcp.user_id is required (set TASKWISE_MCP__USER_ID)")
		os.Exit(1)
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	defer func() { _ = log.Sync() }()

	db, err := repository.NewDB(cfg.Database.URL, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	if _, err := userRepo.Ensure(context.Background(), cfg.MCP.UserID); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to provision user: %v\n", err)
		os.Exit(1)
	}

	tasks := service.NewTaskService(taskRepo, live.NewHub(taskRepo), log)
	s := mcptools.NewServer(tasks, cfg.MCP.UserID, cfg.Location())

	if err := server.ServeStdio(s.MCPServer()); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
