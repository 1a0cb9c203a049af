// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the vaultchat command line.
//
// The command tree is built with cobra. The root command loads a .env file,
// the configuration and the logger before any subcommand runs; the heavier
// collaborators (conversation store, vault, path index, completion client)
// are opened lazily by App the first time a command asks for them and are
// closed when the command finishes.
//
// # Commands
//
//   - chat: interactive session; Tab completes [[references]]
//   - send: submit one message, read from stdin when piped
//   - compose: print the composed wire message without sending it
//   - suggest: print ranked reference suggestions for a partial path
//   - list, show, new, rename, delete: conversation management
//   - migrate: bring the conversation database to the current schema
//   - flashcards create, flashcards export-anki: study cards from notes
//   - config init, config show, config get, config set
//
// Commands run with --json report errors as a JSON object on stdout.
//
// # Usage
//
//	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
//	    os.Exit(cli.GetExitCode(err))
//	}
package cli
