// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/util"
)

// Limits enforced by Validate.
const (
	MaxTokensLimit  = 128000
	MaxHistoryLimit = 1000
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = "1"

// DefaultSystemPrompt is the system prompt used until the user sets one.
const DefaultSystemPrompt = "You are a helpful AI assistant. You provide clear, concise, and accurate responses."

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatstream configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// OpenRouter connection settings
	OpenRouter OpenRouterConfig `toml:"openrouter" json:"openrouter"`

	// Chat defaults that seed the session settings
	Chat ChatConfig `toml:"chat" json:"chat"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// Local web page server
	Server ServerConfig `toml:"server" json:"server"`
}

// OpenRouterConfig contains API connection settings.
type OpenRouterConfig struct {
	APIKey          string `toml:"api_key" json:"api_key"`
	BaseURL         string `toml:"base_url" json:"base_url"`
	SiteURL         string `toml:"site_url" json:"site_url"`
	SiteName        string `toml:"site_name" json:"site_name"`
	ReadTimeoutSecs int    `toml:"read_timeout_secs" json:"read_timeout_secs"`
}

// ReadTimeout returns the per-chunk stream read timeout.
func (c OpenRouterConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSecs) * time.Second
}

// ChatConfig contains the settings a conversation starts with.
type ChatConfig struct {
	Model            string  `toml:"model" json:"model"`
	Temperature      float64 `toml:"temperature" json:"temperature"`
	MaxTokens        int     `toml:"max_tokens" json:"max_tokens"`
	SystemPrompt     string  `toml:"system_prompt" json:"system_prompt"`
	Context          string  `toml:"context" json:"context"`
	SaveConversation bool    `toml:"save_conversation" json:"save_conversation"`
	AutoClear        bool    `toml:"auto_clear" json:"auto_clear"`
	ShowStats        bool    `toml:"show_stats" json:"show_stats"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	HistoryLimit int    `toml:"history_limit" json:"history_limit"`
	ExportDir    string `toml:"export_dir" json:"export_dir"`
	Markdown     bool   `toml:"markdown" json:"markdown"`
}

// ServerConfig contains settings for the local web page.
type ServerConfig struct {
	Addr      string  `toml:"addr" json:"addr"`
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"` // requests per second per client
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`
}

// Default returns a Config with all default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		OpenRouter: OpenRouterConfig{
			BaseURL:         openrouter.DefaultBaseURL,
			SiteURL:         openrouter.DefaultSiteURL,
			SiteName:        openrouter.DefaultSiteName,
			ReadTimeoutSecs: int(openrouter.DefaultReadTimeout / time.Second),
		},
		Chat: ChatConfig{
			Model:            openrouter.DefaultModel,
			Temperature:      0.7,
			MaxTokens:        1000,
			SystemPrompt:     DefaultSystemPrompt,
			SaveConversation: true,
			AutoClear:        false,
			ShowStats:        true,
		},
		UI: UIConfig{
			HistoryLimit: 10,
			ExportDir:    ".",
			Markdown:     true,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:8501",
			RateLimit: 2,
			RateBurst: 5,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatstream configuration directory.
// CHATSTREAM_HOME overrides the default of ~/.chatstream.
func ConfigDir() (string, error) {
	if dir := os.Getenv("CHATSTREAM_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatstream"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: The config file may hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the configuration from the default path.
// A missing file is not an error; defaults are used.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path with full processing:
// defaults, TOML file, .env files, environment overrides, validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	LoadDotEnv(filepath.Dir(path))
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys missing from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadDotEnv loads .env from the working directory and from dir, in that
// order. Variables already set in the environment are never overridden.
func LoadDotEnv(dir string) {
	candidates := []string{".env"}
	if dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", path, err)
		}
	}
}

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - OPENROUTER_API_KEY: overrides openrouter.api_key
//   - CHATSTREAM_BASE_URL: overrides openrouter.base_url
//   - CHATSTREAM_MODEL: overrides chat.model
//   - CHATSTREAM_ADDR: overrides server.addr
func (c *Config) ApplyEnvOverrides() {
	if key := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); key != "" {
		c.OpenRouter.APIKey = key
	}
	if base := os.Getenv("CHATSTREAM_BASE_URL"); base != "" {
		c.OpenRouter.BaseURL = base
	}
	if model := os.Getenv("CHATSTREAM_MODEL"); model != "" {
		c.Chat.Model = openrouter.ResolveModel(model)
	}
	if addr := os.Getenv("CHATSTREAM_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// SetDefaults fills zero values that have no meaningful zero setting.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.OpenRouter.BaseURL == "" {
		c.OpenRouter.BaseURL = d.OpenRouter.BaseURL
	}
	if c.Chat.Model == "" {
		c.Chat.Model = d.Chat.Model
	}
	if c.Chat.MaxTokens == 0 {
		c.Chat.MaxTokens = d.Chat.MaxTokens
	}
	if c.UI.HistoryLimit == 0 {
		c.UI.HistoryLimit = d.UI.HistoryLimit
	}
	if c.UI.ExportDir == "" {
		c.UI.ExportDir = d.UI.ExportDir
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path as TOML with a header comment.
// SECURITY: Written 0600 (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents a half-written config.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# chatstream configuration file\n")
	buf.WriteString("# Generated by chatstream - edit with care\n")
	buf.WriteString("#\n")
	buf.WriteString("# OPENROUTER_API_KEY in the environment or a .env file overrides api_key.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
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

// ValidateErrors is a list of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.OpenRouter.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{Field: "openrouter.base_url", Message: "must be an http(s) URL"})
	}
	if c.OpenRouter.ReadTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "openrouter.read_timeout_secs", Message: "must not be negative"})
	}
	if c.Chat.Temperature < openrouter.MinTemperature || c.Chat.Temperature > openrouter.MaxTemperature {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be between %.1f and %.1f", openrouter.MinTemperature, openrouter.MaxTemperature),
		})
	}
	if c.Chat.MaxTokens < 1 || c.Chat.MaxTokens > MaxTokensLimit {
		errs = append(errs, ValidationError{Field: "chat.max_tokens", Message: fmt.Sprintf("must be between 1 and %d", MaxTokensLimit)})
	}
	if c.UI.HistoryLimit < 1 || c.UI.HistoryLimit > MaxHistoryLimit {
		errs = append(errs, ValidationError{Field: "ui.history_limit", Message: fmt.Sprintf("must be between 1 and %d", MaxHistoryLimit)})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}
	if c.Server.RateBurst < 1 {
		errs = append(errs, ValidationError{Field: "server.rate_burst", Message: "must be at least 1"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "chat.temperature").
// String values are converted to the field's type.
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

// lookup resolves a dotted key against the toml tags of the config structs.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds the struct field whose toml tag matches name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return tag
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			switch strings.ToLower(strings.TrimSpace(strVal)) {
			case "1", "true", "yes", "on":
				field.SetBool(true)
			case "0", "false", "no", "off":
				field.SetBool(false)
			default:
				return fmt.Errorf("invalid boolean value: %q", strVal)
			}
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("cannot assign nil")
	}
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

// AllKeys returns every settable key in dot notation, sorted.
func AllKeys() []string {
	var keys []string
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		f := root.Field(i)
		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, tomlName(f))
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			keys = append(keys, tomlName(f)+"."+tomlName(f.Type.Field(j)))
		}
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a TOML rendering with the API key masked.
func (c *Config) String() string {
	masked := c.Clone()
	if masked.OpenRouter.APIKey != "" {
		masked.OpenRouter.APIKey = openrouter.MaskKey(masked.OpenRouter.APIKey)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(masked); err != nil {
		return fmt.Sprintf("<config encode error: %v>", err)
	}
	return buf.String()
}
