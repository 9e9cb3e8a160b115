// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// proxy_cmd.go - avatar upload proxy command handler.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutordeck/tutordeck-tui/internal/config"
	"github.com/tutordeck/tutordeck-tui/internal/upload"
)

// proxyShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
const proxyShutdownTimeout = 10 * time.Second

// HandleProxy runs the avatar upload proxy until interrupted.
func HandleProxy(args Args) int {
	cfg, err := config.Load()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}
	return runProxy(cfg, args)
}

func runProxy(cfg *config.Config, args Args) int {
	store := upload.NewHTTPBlobStore(cfg.Upload.BlobBaseURL)
	server := upload.NewServer(cfg.Upload.ListenAddr, store).
		WithMaxSize(cfg.Upload.MaxSizeMB * 1024 * 1024)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	if !args.Quiet {
		fmt.Println(infoStyle.Render(fmt.Sprintf(
			"Upload proxy listening on %s, forwarding to %s",
			cfg.Upload.ListenAddr, cfg.Upload.BlobBaseURL)))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			printError("tutordeck: proxy: %v", err)
			return 1
		}
		return 0
	case sig := <-sigCh:
		if !args.Quiet {
			fmt.Println(infoStyle.Render(fmt.Sprintf("Received %s, shutting down", sig)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), proxyShutdownTimeout)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			printError("tutordeck: shutdown: %v", err)
			return 1
		}
		return 0
	}
}
