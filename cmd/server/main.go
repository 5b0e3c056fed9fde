// Package main is the entry point for the flashsync server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main"
// package. The main package should be kept minimal — its job is to:
// 1. Read configuration (from env vars)
// 2. Create dependencies (logger, remote store, connectivity monitor)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/engine, etc.). This separation keeps the app testable and its
// components reusable.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/qliu/flashsync/internal/connectivity"
	"github.com/qliu/flashsync/internal/remote"
	"github.com/qliu/flashsync/internal/remote/httpdoc"
	"github.com/qliu/flashsync/internal/remote/memory"
	"github.com/qliu/flashsync/internal/server"
)

func main() {
	// === 1. SET UP LOGGING ===
	// LOG_LEVEL selects the threshold: debug, info (default), warn, error.
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// === 2. READ CONFIGURATION ===
	// Env vars keep config simple and standard; a larger deployment would
	// layer a config file on top.
	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	// JWT_SECRET must be a long random string. Use:
	//   JWT_SECRET=$(openssl rand -hex 32)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required (at least 16 characters)")
		os.Exit(1)
	}

	// === 3. CACHE DATABASE PATH ===
	// Default to "data/flashsync.db"; DB_PATH overrides for deployments.
	dbPath := "data/flashsync.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create cache directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. REMOTE STORE AND CONNECTIVITY ===
	// REMOTE_URL points at the backing document store. Without it, the
	// server runs fully self-contained on the in-process store — useful for
	// development and demos — and connectivity is pinned "up".
	var (
		remoteStore remote.Store
		monitor     *connectivity.Monitor
	)
	if remoteURL := os.Getenv("REMOTE_URL"); remoteURL != "" {
		remoteStore = httpdoc.New(remoteURL)

		// PROBE_URL defaults to the remote store itself. PROBE_INTERVAL
		// is in seconds.
		probeURL := remoteURL
		if envProbe := os.Getenv("PROBE_URL"); envProbe != "" {
			probeURL = envProbe
		}
		interval := 15 * time.Second
		if envInt := os.Getenv("PROBE_INTERVAL"); envInt != "" {
			secs, err := strconv.Atoi(envInt)
			if err != nil || secs <= 0 {
				logger.Error("invalid PROBE_INTERVAL value", slog.String("value", envInt))
				os.Exit(1)
			}
			interval = time.Duration(secs) * time.Second
		}
		monitor = connectivity.New(connectivity.HTTPProbe(probeURL), interval, logger)
	} else {
		logger.Warn("REMOTE_URL not set — using the in-process document store")
		remoteStore = memory.New()
		monitor = connectivity.Static(true)
	}

	// === 5. CREATE AND START THE SERVER ===
	cfg := server.Config{
		Port:      port,
		DBPath:    dbPath,
		JWTSecret: jwtSecret,
	}

	srv, err := server.New(cfg, remoteStore, monitor, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
