// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the completion client for the Anthropic Messages API.
//
// The client sends a whole conversation and returns the reply as an
// assistant message. Outbound messages go through model.ForWire, so file
// embeds travel as text; reply content is decoded with the tolerant block
// decoder, so unfamiliar block types never fail a request.
//
// # Key Types
//
//   - Client: HTTP client with retry, backoff and a client-side rate limit
//   - Config: endpoint, credentials and limits
//   - APIError: error body returned by the API
//   - ModelInfo: entry in the alias registry
//
// # Usage
//
//	client := cloud.NewClient(cloud.Config{APIKey: key, Model: "sonnet"})
//	reply, err := client.Complete(ctx, conv.Messages)
//
// # Security
//
// API keys are never logged. Logs carry the key fingerprint and a
// per-request correlation id instead.
package cloud
