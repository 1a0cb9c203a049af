// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes a known model.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Tier categorizes the model's capability level
	Tier string `json:"tier"`

	// ContextWindow is the maximum context size in tokens
	ContextWindow int `json:"context_window"`

	// MaxOutput is the largest max_tokens the model accepts
	MaxOutput int `json:"max_output"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// DefaultModel is the alias used when no model is configured.
const DefaultModel = "sonnet"

// Models maps short aliases to known models.
var Models = map[string]ModelInfo{
	"haiku": {
		ID:            "claude-3-5-haiku-latest",
		Name:          "Claude Haiku",
		Tier:          "Fast",
		ContextWindow: 200000,
		MaxOutput:     8192,
	},
	"sonnet": {
		ID:            "claude-sonnet-4-0",
		Name:          "Claude Sonnet",
		Tier:          "Balanced",
		ContextWindow: 200000,
		MaxOutput:     64000,
	},
	"opus": {
		ID:            "claude-opus-4-0",
		Name:          "Claude Opus",
		Tier:          "Powerful",
		ContextWindow: 200000,
		MaxOutput:     32000,
	},
}

// ResolveModel maps an alias to its model ID. Unknown names pass through
// unchanged so new model IDs work without a registry update.
func ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultModel
	}
	if info, ok := Models[strings.ToLower(name)]; ok {
		return info.ID
	}
	return name
}

// LookupModel finds a model by alias or ID.
func LookupModel(nameOrID string) (ModelInfo, bool) {
	if info, ok := Models[strings.ToLower(nameOrID)]; ok {
		return info, true
	}
	for _, info := range Models {
		if info.ID == nameOrID {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// ModelAliases returns the registry aliases in sorted order.
func ModelAliases() []string {
	names := make([]string, 0, len(Models))
	for name := range Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContextString returns a formatted context window string.
func (m ModelInfo) ContextString() string {
	if m.ContextWindow >= 1000000 {
		return fmt.Sprintf("%.1fM tokens", float64(m.ContextWindow)/1000000)
	}
	if m.ContextWindow >= 1000 {
		return fmt.Sprintf("%dK tokens", m.ContextWindow/1000)
	}
	return fmt.Sprintf("%d tokens", m.ContextWindow)
}
