// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line interface parsing and execution for
// tutordeck.
//
// # Key Types
//
//   - Command: Enumeration of all available CLI commands
//   - Args: Parsed command-line arguments with global and command-specific flags
//   - Env: Shared wiring (config, credential store, API client) for handlers
//
// # Usage
//
// Parse and execute commands:
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdChat:
//	    os.Exit(cli.HandleChat(args))
//	case cli.CmdAsk:
//	    os.Exit(cli.HandleAsk(args))
//	}
//
// Handlers return process exit codes: 0 on success, 1 on runtime failure,
// 2 on usage errors.
package cli
