// vaultchat - chat with a language model about the notes in your vault.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/vaultchat/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	cli.Version = Version + " (" + GitCommit + ")"

	// SIGTERM stops the process; Ctrl+C is handled per request by the REPL
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	stop()

	os.Exit(cli.GetExitCode(err))
}
