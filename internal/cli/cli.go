// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for tutordeck.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdVersion
	CmdLogin
	CmdSignup
	CmdLogout
	CmdStatus
	CmdChat
	CmdAsk
	CmdRepl
	CmdSessions
	CmdExport
	CmdProxy
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Instructor bool // Act as an instructor account
	Quiet      bool
	Verbose    bool

	// Command-specific
	BotID          string
	ConversationID string
	Query          string
	Format         string // Export format: markdown, json, html
	OutputDir      string
	Limit          int // Max entries for sessions listing

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `tutordeck - terminal client for the TutorDeck tutoring platform

Tutordeck talks to a TutorDeck backend: you sign in, pick a tutor bot,
and chat with it from your terminal with live streamed answers.

Usage:
  tutordeck login                    Sign in and store the access token
  tutordeck signup                   Create an account
  tutordeck logout                   Forget the stored access token
  tutordeck status                   Show who you are signed in as
  tutordeck chat BOT_ID [CONV_ID]    Full-screen chat with a tutor bot
  tutordeck ask BOT_ID "question"    One-shot question, streamed to stdout
  tutordeck repl BOT_ID [CONV_ID]    Line-based chat loop (no full-screen UI)
  tutordeck sessions                 List locally cached conversations
  tutordeck export CONV_ID           Export a cached conversation
  tutordeck proxy                    Run the avatar upload proxy
  tutordeck version                  Show version information
  tutordeck help                     Show this help

Auth:
  tutordeck login                    Student login (email + password)
  tutordeck login --instructor       Instructor login (prompts for TOTP
                                     when the account has it enabled)
  tutordeck signup [--instructor]    Create a student or instructor account

Chat:
  tutordeck chat BOT_ID              Start a new conversation
  tutordeck chat BOT_ID CONV_ID      Resume an existing conversation
  tutordeck ask BOT_ID "question"    Ask once and exit
  tutordeck repl BOT_ID              Readline-style loop with input history

Sessions:
  tutordeck sessions                 List cached conversations
    --limit N                        Show at most N entries (default: 20)
  tutordeck export CONV_ID           Export a cached conversation to a file
    --format markdown|json|html      Export format (default: markdown)
    --output DIR                     Output directory (default: current)

Proxy:
  tutordeck proxy                    Serve the avatar upload endpoint
                                     (listen address and blob store come
                                     from the [upload] config section)

Global flags:
  --instructor                       Use the instructor API surface
  -q, --quiet                        Minimal output
  -v, --verbose                      Verbose output

Configuration:
  ~/.tutordeck/config.toml           Main configuration file
  TUTORDECK_BACKEND_URL              Override backend base URL
  TUTORDECK_THEME                    Override UI theme (dark|light|auto)
  TUTORDECK_HISTORY_DISABLED         Disable the local history cache

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("tutordeck version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parseArgs(os.Args[1:])
}

func parseArgs(args []string) (Command, Args) {
	// Parse global flags first
	remaining, parsedArgs := parseGlobalFlags(args)

	// No command means help; there is no default screen without a bot ID.
	if len(remaining) == 0 {
		return CmdHelp, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "login":
		return CmdLogin, parsedArgs

	case "signup", "register":
		return CmdSignup, parsedArgs

	case "logout":
		return CmdLogout, parsedArgs

	case "status", "s", "whoami":
		return CmdStatus, parsedArgs

	case "chat":
		parseChatArgs(&parsedArgs, remaining)
		return CmdChat, parsedArgs

	case "ask":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "repl":
		parseChatArgs(&parsedArgs, remaining)
		return CmdRepl, parsedArgs

	case "sessions", "session", "history":
		parseSessionsArgs(&parsedArgs, remaining)
		return CmdSessions, parsedArgs

	case "export":
		parseExportArgs(&parsedArgs, remaining)
		return CmdExport, parsedArgs

	case "proxy", "upload-proxy":
		return CmdProxy, parsedArgs

	case "version", "-v", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown command: show help rather than guessing.
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for _, arg := range args {
		switch arg {
		case "--instructor":
			parsedArgs.Instructor = true
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "--verbose":
			parsedArgs.Verbose = true
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, parsedArgs
}

// parseChatArgs fills BotID and optional ConversationID for chat/repl.
func parseChatArgs(args *Args, remaining []string) {
	var positional []string
	for _, arg := range remaining {
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
		}
	}
	if len(positional) > 0 {
		args.BotID = positional[0]
	}
	if len(positional) > 1 {
		args.ConversationID = positional[1]
	}
}

// parseAskArgs fills BotID and joins the rest into a single query.
func parseAskArgs(args *Args, remaining []string) {
	var positional []string
	for _, arg := range remaining {
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
		}
	}
	if len(positional) > 0 {
		args.BotID = positional[0]
	}
	if len(positional) > 1 {
		args.Query = strings.Join(positional[1:], " ")
	}
}

func parseSessionsArgs(args *Args, remaining []string) {
	args.Limit = 20
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case arg == "--limit" && i+1 < len(remaining):
			i++
			if n, err := strconv.Atoi(remaining[i]); err == nil && n > 0 {
				args.Limit = n
			}
		case strings.HasPrefix(arg, "--limit="):
			if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--limit=")); err == nil && n > 0 {
				args.Limit = n
			}
		}
	}
}

func parseExportArgs(args *Args, remaining []string) {
	args.Format = "markdown"
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case arg == "--format" && i+1 < len(remaining):
			i++
			args.Format = remaining[i]
		case strings.HasPrefix(arg, "--format="):
			args.Format = strings.TrimPrefix(arg, "--format=")
		case arg == "--output" && i+1 < len(remaining):
			i++
			args.OutputDir = remaining[i]
		case strings.HasPrefix(arg, "--output="):
			args.OutputDir = strings.TrimPrefix(arg, "--output=")
		case !strings.HasPrefix(arg, "-") && args.ConversationID == "":
			args.ConversationID = arg
		}
	}
}
