// tutordeck - terminal client for the TutorDeck tutoring platform.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/tutordeck/tutordeck-tui/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdLogin:
		os.Exit(cli.HandleLogin(args))
	case cli.CmdSignup:
		os.Exit(cli.HandleSignup(args))
	case cli.CmdLogout:
		os.Exit(cli.HandleLogout(args))
	case cli.CmdStatus:
		os.Exit(cli.HandleStatus(args))
	case cli.CmdChat:
		os.Exit(cli.HandleChat(args))
	case cli.CmdAsk:
		os.Exit(cli.HandleAsk(args))
	case cli.CmdRepl:
		os.Exit(cli.HandleRepl(args))
	case cli.CmdSessions:
		os.Exit(cli.HandleSessions(args))
	case cli.CmdExport:
		os.Exit(cli.HandleExport(args))
	case cli.CmdProxy:
		os.Exit(cli.HandleProxy(args))
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		cli.PrintUsage()
		os.Exit(2)
	}
}
