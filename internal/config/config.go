package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "newsdesk"
	defaultConfig = ".config"
	defaultState  = ".local/state"
)

var configFiles = []string{
	"config.yaml",
	"config.yml",
}

// Config represents the structure of the configuration file used by the application.
type Config struct {
	Server   string            `yaml:"server" default:"http://localhost:8080"`
	StateDir string            `yaml:"state_dir"`
	Timeout  time.Duration     `yaml:"timeout" default:"30s"`
	Render   Render            `yaml:"render"`
	Prompts  map[string]string `yaml:"prompts"`
	Queries  map[string]Query  `yaml:"queries"`
}

// Render controls how streamed output is displayed.
type Render struct {
	Format string `yaml:"format" default:"markdown"`
	Wrap   int    `yaml:"wrap" default:"120"`
	Theme  string `yaml:"theme" default:"auto"`
}

// Query is a named query preset. Prompt may reference {{placeholders}};
// Label describes the preset in listings.
type Query struct {
	Label  string `yaml:"label"`
	Prompt string `yaml:"prompt"`
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Placeholders returns the distinct placeholder names in the prompt, sorted.
func (q Query) Placeholders() []string {
	seen := map[string]struct{}{}
	var names []string
	for _, match := range placeholder.FindAllStringSubmatch(q.Prompt, -1) {
		if _, ok := seen[match[1]]; ok {
			continue
		}
		seen[match[1]] = struct{}{}
		names = append(names, match[1])
	}
	sort.Strings(names)
	return names
}

// Expand fills every placeholder from values. Missing or blank values are an error.
func (q Query) Expand(values map[string]string) (string, error) {
	var missing []string
	for _, name := range q.Placeholders() {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing value for placeholder(s): %s", strings.Join(missing, ", "))
	}
	return placeholder.ReplaceAllStringFunc(q.Prompt, func(m string) string {
		return values[placeholder.FindStringSubmatch(m)[1]]
	}), nil
}

// configResult is a struct used to return the configuration and any error that occurs during loading.
type configResult struct {
	config *Config
	err    error
}

// NewDefaultConfig creates a configuration populated with defaults.
func NewDefaultConfig() (*Config, error) {
	cfg := &Config{}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if cfg.Prompts == nil {
		cfg.Prompts = map[string]string{}
	}
	if cfg.Queries == nil {
		cfg.Queries = map[string]Query{}
	}
	if cfg.StateDir == "" {
		dir, err := getStatePath()
		if err != nil {
			return err
		}
		cfg.StateDir = dir
	}
	cfg.StateDir = os.ExpandEnv(cfg.StateDir)
	return nil
}

// getConfigPath retrieves the path to the configuration directory based on the XDG_CONFIG_HOME environment variable.
func getConfigPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configHome = filepath.Join(home, defaultConfig)
	}

	return filepath.Join(configHome, configDirName), nil
}

func getStatePath() (string, error) {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		stateHome = filepath.Join(home, defaultState)
	}

	return filepath.Join(stateHome, configDirName), nil
}

// tryLoadConfig attempts to load a configuration file from the specified path.
func tryLoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that cannot be fixed up by defaults.
func (c *Config) Validate() error {
	switch c.Render.Format {
	case "markdown", "plain", "html":
	default:
		return fmt.Errorf("render.format must be markdown, plain or html, got %q", c.Render.Format)
	}
	if c.Render.Wrap < 0 {
		return fmt.Errorf("render.wrap must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("server must be an http(s) URL, got %q", c.Server)
	}
	return nil
}

// LoadConfig loads the configuration from the user's home directory, with a timeout.
func LoadConfig(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result := make(chan configResult, 1)

	go func() {
		cfg, err := loadConfigFiles(ctx)
		result <- configResult{config: cfg, err: err}
	}()

	done := ctx.Done()
	select {
	case <-done:
		return nil, ctx.Err()
	case r := <-result:
		return r.config, r.err
	}
}

// loadConfigFiles loads configuration files from the user's home directory.
func loadConfigFiles(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before loading config: %w", err)
	}

	configDir, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	// Return default config early if directory doesn't exist
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return NewDefaultConfig()
	}

	for _, filename := range configFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg, err := tryLoadConfig(filepath.Join(configDir, filename))
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config from %s: %w", filename, err)
		}
	}

	return NewDefaultConfig()
}
