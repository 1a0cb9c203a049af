// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/vaultchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete vaultchat configuration.
type Config struct {
	Vault        VaultConfig        `toml:"vault" json:"vault" yaml:"vault"`
	Storage      StorageConfig      `toml:"storage" json:"storage" yaml:"storage"`
	Model        ModelConfig        `toml:"model" json:"model" yaml:"model"`
	Autocomplete AutocompleteConfig `toml:"autocomplete" json:"autocomplete" yaml:"autocomplete"`
	Compose      ComposeConfig      `toml:"compose" json:"compose" yaml:"compose"`
	Logging      LoggingConfig      `toml:"logging" json:"logging" yaml:"logging"`
}

// VaultConfig locates the vault and bounds what is read from it.
type VaultConfig struct {
	// Root is the vault directory
	Root string `toml:"root" json:"root" yaml:"root"`

	// Ignore lists directory or file names skipped when indexing
	Ignore []string `toml:"ignore" json:"ignore" yaml:"ignore"`

	// MaxAttachmentBytes is the largest file a reference may attach
	MaxAttachmentBytes int64 `toml:"max_attachment_bytes" json:"max_attachment_bytes" yaml:"max_attachment_bytes"`

	// Watch keeps the path index current while running
	Watch bool `toml:"watch" json:"watch" yaml:"watch"`

	// WatchDebounceMS is the quiet period before a change is indexed
	WatchDebounceMS int `toml:"watch_debounce_ms" json:"watch_debounce_ms" yaml:"watch_debounce_ms"`

	// CacheEntries sizes the file content cache; negative disables it
	CacheEntries int `toml:"cache_entries" json:"cache_entries" yaml:"cache_entries"`
}

// StorageConfig locates the databases.
type StorageConfig struct {
	// DatabasePath is the conversation database
	DatabasePath string `toml:"database_path" json:"database_path" yaml:"database_path"`

	// IndexPath is the path index database; empty keeps it in memory
	IndexPath string `toml:"index_path" json:"index_path" yaml:"index_path"`
}

// ModelConfig configures the completion client.
type ModelConfig struct {
	APIKey            string `toml:"api_key" json:"api_key" yaml:"api_key"`
	BaseURL           string `toml:"base_url" json:"base_url" yaml:"base_url"`
	Model             string `toml:"model" json:"model" yaml:"model"`
	MaxTokens         int    `toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
	TimeoutSecs       int    `toml:"timeout_secs" json:"timeout_secs" yaml:"timeout_secs"`
	MaxRetries        int    `toml:"max_retries" json:"max_retries" yaml:"max_retries"`
	RequestsPerMinute int    `toml:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute"`
}

// AutocompleteConfig configures reference suggestions.
type AutocompleteConfig struct {
	MaxSuggestions int `toml:"max_suggestions" json:"max_suggestions" yaml:"max_suggestions"`
}

// ComposeConfig configures message composition.
type ComposeConfig struct {
	// ResolveConcurrency bounds parallel attachment reads per message
	ResolveConcurrency int `toml:"resolve_concurrency" json:"resolve_concurrency" yaml:"resolve_concurrency"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `toml:"level" json:"level" yaml:"level"`
	Development bool   `toml:"development" json:"development" yaml:"development"`

	// File receives log output; empty means stderr
	File string `toml:"file" json:"file" yaml:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".vaultchat"
	}
	return &Config{
		Vault: VaultConfig{
			Ignore:             []string{".obsidian", ".git", ".trash", ".DS_Store"},
			MaxAttachmentBytes: 32 * 1024 * 1024,
			Watch:              true,
			WatchDebounceMS:    200,
			CacheEntries:       256,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(dir, "conversations.db"),
		},
		Model: ModelConfig{
			BaseURL:           "https://api.anthropic.com",
			Model:             "sonnet",
			MaxTokens:         4096,
			TimeoutSecs:       120,
			MaxRetries:        3,
			RequestsPerMinute: 0,
		},
		Autocomplete: AutocompleteConfig{
			MaxSuggestions: 10,
		},
		Compose: ComposeConfig{
			ResolveConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// WatchDebounce returns the debounce period as a duration.
func (v VaultConfig) WatchDebounce() time.Duration {
	return time.Duration(v.WatchDebounceMS) * time.Millisecond
}

// Timeout returns the completion timeout; zero means none.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the vaultchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".vaultchat"), nil
}

// ConfigPath returns the path to the default TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ExpandPath replaces a leading ~ with the home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: Config files hold the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the default config file if present, then applies environment
// overrides, and validates the result.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file. The format follows
// the extension: .json, .yaml or .yml, anything else TOML. Keys missing
// from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadFileOnly decodes path onto the defaults without environment
// overrides, path expansion or validation. Use it to edit the file itself.
func LoadFileOnly(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Permissions might not be fixable on all systems
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode TOML: %w", err)
		}
	}
	return nil
}

// SetDefaults fills zero values that have no meaning of their own.
func (c *Config) SetDefaults() {
	def := Default()

	if c.Vault.MaxAttachmentBytes == 0 {
		c.Vault.MaxAttachmentBytes = def.Vault.MaxAttachmentBytes
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = def.Storage.DatabasePath
	}
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = def.Model.BaseURL
	}
	if c.Model.Model == "" {
		c.Model.Model = def.Model.Model
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = def.Model.MaxTokens
	}
	if c.Model.MaxRetries == 0 {
		c.Model.MaxRetries = def.Model.MaxRetries
	}
	if c.Autocomplete.MaxSuggestions == 0 {
		c.Autocomplete.MaxSuggestions = def.Autocomplete.MaxSuggestions
	}
	if c.Compose.ResolveConcurrency == 0 {
		c.Compose.ResolveConcurrency = def.Compose.ResolveConcurrency
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}

	c.Vault.Root = ExpandPath(c.Vault.Root)
	c.Storage.DatabasePath = ExpandPath(c.Storage.DatabasePath)
	c.Storage.IndexPath = ExpandPath(c.Storage.IndexPath)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML.
// SECURITY: Written 0600 through an atomic replace.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# vaultchat configuration file\n")
	buf.WriteString("# Environment variables (VAULTCHAT_*) override these values\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveYAML writes the configuration as YAML.
func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveFile writes the configuration in the format the extension names:
// .json, .yaml or .yml, anything else TOML.
func SaveFile(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SaveJSON(cfg, path)
	case ".yaml", ".yml":
		return SaveYAML(cfg, path)
	default:
		return SaveTOML(cfg, path)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ErrNoVault is returned by RequireVault when no vault root is configured.
var ErrNoVault = errors.New("no vault configured: set vault.root, VAULTCHAT_VAULT or --vault")

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Vault
	if c.Vault.MaxAttachmentBytes < 0 {
		add("vault.max_attachment_bytes", "must be positive, got %d", c.Vault.MaxAttachmentBytes)
	}
	if c.Vault.WatchDebounceMS < 0 || c.Vault.WatchDebounceMS > 60000 {
		add("vault.watch_debounce_ms", "must be between 0 and 60000, got %d", c.Vault.WatchDebounceMS)
	}
	for _, name := range c.Vault.Ignore {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
			add("vault.ignore", "entries must be single path components, got %q", name)
		}
	}

	// Storage
	if strings.TrimSpace(c.Storage.DatabasePath) == "" {
		add("storage.database_path", "must not be empty")
	}

	// Model
	if u, err := url.Parse(c.Model.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("model.base_url", "must be an http(s) URL, got %q", c.Model.BaseURL)
	}
	if c.Model.MaxTokens < 1 || c.Model.MaxTokens > 200000 {
		add("model.max_tokens", "must be between 1 and 200000, got %d", c.Model.MaxTokens)
	}
	if c.Model.TimeoutSecs < 0 || c.Model.TimeoutSecs > 3600 {
		add("model.timeout_secs", "must be between 0 and 3600, got %d", c.Model.TimeoutSecs)
	}
	if c.Model.MaxRetries < 1 || c.Model.MaxRetries > 10 {
		add("model.max_retries", "must be between 1 and 10, got %d", c.Model.MaxRetries)
	}
	if c.Model.RequestsPerMinute < 0 {
		add("model.requests_per_minute", "must not be negative, got %d", c.Model.RequestsPerMinute)
	}

	// Autocomplete
	if c.Autocomplete.MaxSuggestions < 1 || c.Autocomplete.MaxSuggestions > 100 {
		add("autocomplete.max_suggestions", "must be between 1 and 100, got %d", c.Autocomplete.MaxSuggestions)
	}

	// Compose
	if c.Compose.ResolveConcurrency < 1 || c.Compose.ResolveConcurrency > 64 {
		add("compose.resolve_concurrency", "must be between 1 and 64, got %d", c.Compose.ResolveConcurrency)
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequireVault checks that the vault root is set and is a directory.
func (c *Config) RequireVault() error {
	if strings.TrimSpace(c.Vault.Root) == "" {
		return ErrNoVault
	}
	info, err := os.Stat(c.Vault.Root)
	if err != nil {
		return fmt.Errorf("vault root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root %s is not a directory", c.Vault.Root)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - VAULTCHAT_VAULT: overrides vault.root
//   - VAULTCHAT_DB: overrides storage.database_path
//   - VAULTCHAT_API_KEY: overrides model.api_key
//   - ANTHROPIC_API_KEY: used for model.api_key when VAULTCHAT_API_KEY is unset
//   - VAULTCHAT_MODEL: overrides model.model
//   - VAULTCHAT_BASE_URL: overrides model.base_url
//   - VAULTCHAT_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if root := os.Getenv("VAULTCHAT_VAULT"); root != "" {
		c.Vault.Root = root
	}
	if db := os.Getenv("VAULTCHAT_DB"); db != "" {
		c.Storage.DatabasePath = db
	}
	if key := os.Getenv("VAULTCHAT_API_KEY"); key != "" {
		c.Model.APIKey = key
	} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Model.APIKey = key
	}
	if model := os.Getenv("VAULTCHAT_MODEL"); model != "" {
		c.Model.Model = model
	}
	if baseURL := os.Getenv("VAULTCHAT_BASE_URL"); baseURL != "" {
		c.Model.BaseURL = baseURL
	}
	if level := os.Getenv("VAULTCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "model.max_tokens").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "model.max_tokens").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.EqualFold(strVal, "true") || strings.EqualFold(strVal, "yes")
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Vault.Ignore != nil {
		clone.Vault.Ignore = append([]string(nil), c.Vault.Ignore...)
	}
	return &clone
}

// String returns the config as TOML with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Model.APIKey != "" {
		safe.Model.APIKey = "[REDACTED]"
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}
