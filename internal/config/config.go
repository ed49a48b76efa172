// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jeranaias/adtech-chat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete adtech-chat configuration.
type Config struct {
	// Proxy configures the chat relay (serve and the Lambda function).
	Proxy ProxyConfig `toml:"proxy" json:"proxy"`

	// Client configures the terminal chat panel.
	Client ClientConfig `toml:"client" json:"client"`

	// UI configures rendering of the interactive panel.
	UI UIConfig `toml:"ui" json:"ui"`
}

// ProxyConfig contains chat proxy configuration.
type ProxyConfig struct {
	// Addr is the listen address, host:port.
	Addr string `toml:"addr" json:"addr" env:"ADTECH_PROXY_ADDR"`
	// Path is the route the panel posts to.
	Path string `toml:"path" json:"path" env:"ADTECH_PROXY_PATH"`
	// UpstreamURL is the gateway's chat-completions endpoint.
	UpstreamURL string `toml:"upstream_url" json:"upstream_url" env:"ADTECH_UPSTREAM_URL"`
	// Model names the gateway model.
	Model string `toml:"model" json:"model" env:"ADTECH_MODEL"`
	// CredentialEnv names the environment variable holding the gateway key.
	// The key itself is never stored in the config file.
	CredentialEnv string `toml:"credential_env" json:"credential_env" env:"ADTECH_CREDENTIAL_ENV"`
	// SystemPromptFile replaces the built-in instruction when set. The file is
	// watched and reloaded on change.
	SystemPromptFile string `toml:"system_prompt_file" json:"system_prompt_file" env:"ADTECH_SYSTEM_PROMPT_FILE"`
	// MaxBodyBytes bounds the request body.
	MaxBodyBytes int64 `toml:"max_body_bytes" json:"max_body_bytes" env:"ADTECH_MAX_BODY_BYTES"`
	// CORSOrigins is a comma-separated list of origins allowed to call the
	// chat route. "*" allows any origin; "*.example.com" allows subdomains.
	CORSOrigins string `toml:"cors_origins" json:"cors_origins" env:"ADTECH_CORS_ORIGINS"`
}

// Origins returns CORSOrigins split into its entries.
func (c ProxyConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// ClientConfig contains chat panel configuration.
type ClientConfig struct {
	// Endpoint is the proxy URL turns are posted to.
	Endpoint string `toml:"endpoint" json:"endpoint" env:"ADTECH_ENDPOINT"`
	// APIKey is the publishable key sent as a bearer token.
	APIKey string `toml:"api_key" json:"api_key" env:"ADTECH_API_KEY"`
	// Context is the module label sent with every turn.
	Context string `toml:"context" json:"context" env:"ADTECH_CONTEXT"`
	// TimeoutSecs bounds a whole turn, streaming included (0 = no bound).
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" env:"ADTECH_TIMEOUT_SECS"`
}

// UIConfig contains terminal UI configuration.
type UIConfig struct {
	// Markdown renders replies through glamour.
	Markdown bool `toml:"markdown" json:"markdown" env:"ADTECH_MARKDOWN"`
	// MaxFPS caps how often a streaming reply is re-rendered.
	MaxFPS int `toml:"max_fps" json:"max_fps" env:"ADTECH_MAX_FPS"`
}

// Timeout returns the client timeout as a duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	defaultMaxBodyBytes = 1 << 20
	maxMaxBodyBytes     = 64 << 20
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Addr:          "127.0.0.1:8787",
			Path:          "/functions/v1/adtech-chat",
			UpstreamURL:   "https://ai.gateway.lovable.dev/v1/chat/completions",
			Model:         "google/gemini-2.5-flash",
			CredentialEnv: "LOVABLE_API_KEY",
			MaxBodyBytes:  defaultMaxBodyBytes,
			CORSOrigins:   "*",
		},
		Client: ClientConfig{
			Endpoint: "http://127.0.0.1:8787/functions/v1/adtech-chat",
		},
		UI: UIConfig{
			Markdown: true,
			MaxFPS:   30,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the adtech-chat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".adtech-chat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: The file may hold the publishable key; keep it owner-only.
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

// Load reads ~/.adtech-chat/config.toml when it exists, applies environment
// overrides and validates the result. A missing file yields the defaults.
// CONFIG: Comprehensive validation ensures safe configuration
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	return FromEnv()
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// ReadFile decodes path over the defaults without environment overrides or
// validation. Use it to edit a file in place.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from the defaults and the environment alone.
// Serverless deployments have no config file.
func FromEnv() (*Config, error) {
	return finish(Default())
}

func decodeFile(cfg *Config, path string) error {
	// SECURITY: Check and fix file permissions if needed
	if err := ensureSecurePermissions(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
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
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to path as TOML.
// SECURITY: Written 0600 (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# adtech-chat configuration file\n")
	buf.WriteString("# The gateway key is read from the variable named by proxy.credential_env.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
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

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found as
// ValidationErrors.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// ==========================================================================
	// Proxy
	// ==========================================================================

	if _, _, err := net.SplitHostPort(c.Proxy.Addr); err != nil {
		add("proxy.addr", "invalid listen address '%s': %v", c.Proxy.Addr, err)
	}
	if !strings.HasPrefix(c.Proxy.Path, "/") {
		add("proxy.path", "must start with '/', got '%s'", c.Proxy.Path)
	}
	if err := validateHTTPURL(c.Proxy.UpstreamURL); err != nil {
		add("proxy.upstream_url", "%v", err)
	}
	if strings.TrimSpace(c.Proxy.Model) == "" {
		add("proxy.model", "must not be empty")
	}
	if !validEnvName(c.Proxy.CredentialEnv) {
		add("proxy.credential_env", "invalid environment variable name '%s'", c.Proxy.CredentialEnv)
	}
	if c.Proxy.MaxBodyBytes <= 0 || c.Proxy.MaxBodyBytes > maxMaxBodyBytes {
		add("proxy.max_body_bytes", "must be between 1 and %d, got %d", maxMaxBodyBytes, c.Proxy.MaxBodyBytes)
	}
	if len(c.Proxy.Origins()) == 0 {
		add("proxy.cors_origins", "must list at least one origin")
	}
	for _, o := range c.Proxy.Origins() {
		if o != "*" && !strings.HasPrefix(o, "*.") && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			add("proxy.cors_origins", "origin '%s' must be '*', '*.domain' or an http(s) origin", o)
		}
	}

	// ==========================================================================
	// Client
	// ==========================================================================

	if err := validateHTTPURL(c.Client.Endpoint); err != nil {
		add("client.endpoint", "%v", err)
	}
	if c.Client.TimeoutSecs < 0 {
		add("client.timeout_secs", "must not be negative, got %d", c.Client.TimeoutSecs)
	}

	// ==========================================================================
	// UI
	// ==========================================================================

	if c.UI.MaxFPS < 1 || c.UI.MaxFPS > 120 {
		add("ui.max_fps", "must be between 1 and 120, got %d", c.UI.MaxFPS)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL '%s': %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL '%s' must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL '%s' has no host", raw)
	}
	return nil
}

func validEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies ADTECH_* environment variables over the current
// values. Unset variables leave fields alone.
//
// Supported environment variables:
//   - ADTECH_PROXY_ADDR, ADTECH_PROXY_PATH, ADTECH_UPSTREAM_URL, ADTECH_MODEL
//   - ADTECH_CREDENTIAL_ENV, ADTECH_SYSTEM_PROMPT_FILE, ADTECH_MAX_BODY_BYTES
//   - ADTECH_ENDPOINT, ADTECH_API_KEY, ADTECH_CONTEXT, ADTECH_TIMEOUT_SECS
//   - ADTECH_MARKDOWN, ADTECH_MAX_FPS
func (c *Config) ApplyEnvOverrides() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value by its TOML key (e.g., "proxy.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value by its TOML key. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by TOML tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
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
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
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

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == strings.ToLower(name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
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
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	// Numeric conversions only; int to string would yield a rune.
	if isNumeric(val.Kind()) && isNumeric(field.Kind()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns every configuration key in dot notation, in file order.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, tomlName(section)+"."+tomlName(section.Type.Field(j)))
		}
	}
	return keys
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as indented JSON for display.
// SECURITY: The publishable key is redacted so it never lands in logs.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Client.APIKey != "" {
		safe.Client.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
