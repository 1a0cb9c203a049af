// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for vaultchat.
//
// TOML is the primary format; JSON and YAML files are accepted by
// extension. Defaults apply to any key a file leaves out, environment
// variables override the file, and validation reports every problem at once.
//
// # Key Types
//
//   - Config: complete configuration
//   - VaultConfig, StorageConfig, ModelConfig: per-section settings
//   - ValidateErrors: all validation failures of one load
//
// # Configuration Precedence
//
// Configuration is resolved in this order, later winning:
//   - Built-in defaults
//   - ~/.vaultchat/config.toml (or the file passed to LoadFromPath)
//   - Environment variables (VAULTCHAT_*, ANTHROPIC_API_KEY)
//
// # Usage
//
//	cfg, err := config.LoadFromPath(path)
//	if err != nil {
//	    return err
//	}
//	client := cloud.NewClient(cloud.Config{APIKey: cfg.Model.APIKey})
package config
