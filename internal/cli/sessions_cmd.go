// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions_cmd.go - local history listing and export command handlers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tutordeck/tutordeck-tui/internal/export"
	"github.com/tutordeck/tutordeck-tui/internal/history"
	"github.com/tutordeck/tutordeck-tui/internal/util"
)

// HandleSessions lists locally cached conversations, newest first.
func HandleSessions(args Args) int {
	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	store, err := env.OpenHistory()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}
	if store == nil {
		fmt.Println(infoStyle.Render("Local history is disabled in config."))
		return 0
	}
	defer store.Close()

	entries, err := store.Recent(context.Background(), args.Limit)
	if err != nil {
		printError("tutordeck: list sessions: %v", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println(infoStyle.Render("No cached conversations yet."))
		return 0
	}

	for _, entry := range entries {
		title := entry.Conversation.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %-40s  %3d msgs  %s\n",
			entry.Conversation.ID,
			util.TruncateWidth(title, 40),
			entry.MessageCount,
			formatAge(entry.UpdatedAt),
		)
	}
	return 0
}

// HandleExport writes a cached conversation to a file.
func HandleExport(args Args) int {
	if args.ConversationID == "" {
		printError("tutordeck: export needs a conversation ID (see 'tutordeck sessions')")
		return 2
	}

	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	store, err := env.OpenHistory()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}
	if store == nil {
		printError("tutordeck: local history is disabled; nothing to export")
		return 1
	}
	defer store.Close()

	transcript, err := store.Get(context.Background(), args.ConversationID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			printError("tutordeck: no cached conversation %s", args.ConversationID)
		} else {
			printError("tutordeck: load conversation: %v", err)
		}
		return 1
	}

	opts := export.DefaultOptions()
	opts.IncludeTimestamps = env.Config.UI.ShowTimestamps
	opts.Theme = env.Config.UI.Theme
	if args.OutputDir != "" {
		opts.OutputDir = args.OutputDir
	}

	exporter, err := export.ForFormat(args.Format, opts)
	if err != nil {
		printError("tutordeck: %v", err)
		return 2
	}

	path, err := export.ExportToFile(exporter, transcript, opts)
	if err != nil {
		printError("tutordeck: export: %v", err)
		return 1
	}
	fmt.Println(successStyle.Render("Exported to " + path))
	return 0
}

// formatAge renders a rough "how long ago" for session listings.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
