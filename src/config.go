package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix     = "PTYBRIDGE"
	envConfigPath = "PTYBRIDGE_CONFIG"

	minBufferSize = 512
	maxBufferSize = 1 << 20
)

// ErrConfig marks configuration problems, which are fatal at startup.
var ErrConfig = errors.New("invalid configuration")

// appConfig is layered: defaults, then the YAML file, then PTYBRIDGE_*
// environment variables, then command-line flags.
type appConfig struct {
	Shell       string            `yaml:"shell"`
	ShellArgs   []string          `yaml:"shell_args" split_words:"true"`
	Dir         string            `yaml:"dir"`
	Term        string            `yaml:"term"`
	Cols        uint16            `yaml:"cols"`
	Rows        uint16            `yaml:"rows"`
	InheritSize bool              `yaml:"inherit_size" split_words:"true"`
	BufferSize  string            `yaml:"buffer_size" split_words:"true"`
	Env         map[string]string `yaml:"env" ignored:"true"`
	LogLevel    string            `yaml:"log_level" split_words:"true"`
	LogFormat   string            `yaml:"log_format" split_words:"true"`
}

func defaultConfig() appConfig {
	return appConfig{
		ShellArgs:  append([]string(nil), defaultShellArgs...),
		Term:       "xterm-256color",
		Cols:       defaultGeometry.Cols,
		Rows:       defaultGeometry.Rows,
		BufferSize: humanize.IBytes(defaultRelayBufferSize),
		LogLevel:   "info",
		LogFormat:  logFormatConsole,
	}
}

// loadConfig builds the configuration from defaults, an optional YAML file
// and the environment. explicitPath, when set, must exist.
func loadConfig(explicitPath string) (appConfig, string, error) {
	cfg := defaultConfig()

	path, required := explicitPath, explicitPath != ""
	if !required {
		if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
			path, required = p, true
		} else {
			path, _ = findConfigPath()
		}
	}
	if path != "" {
		if err := mergeConfigFile(&cfg, path); err != nil {
			if required || !errors.Is(err, os.ErrNotExist) {
				return cfg, path, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
			}
			path = ""
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, path, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, path, nil
}

func mergeConfigFile(cfg *appConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func findConfigPath() (string, bool) {
	cwd, _ := os.Getwd()
	paths := []string{
		filepath.Join(cwd, "ptybridge.yaml"),
		filepath.Join(cwd, "ptybridge.yml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "ptybridge", "config.yaml"),
			filepath.Join(home, ".config", "ptybridge", "config.yml"),
		)
	}
	for _, p := range paths {
		if fileExists(p) {
			return p, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// validate checks the values the bridge cannot start without.
func (c appConfig) validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrConfig, err)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case logFormatConsole, logFormatJSON:
	default:
		return fmt.Errorf("%w: log_format %q (want %s or %s)", ErrConfig, c.LogFormat, logFormatConsole, logFormatJSON)
	}
	if _, err := c.bufferBytes(); err != nil {
		return err
	}
	if c.Dir != "" {
		info, err := os.Stat(c.Dir)
		if err != nil {
			return fmt.Errorf("%w: dir: %v", ErrConfig, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: dir %q is not a directory", ErrConfig, c.Dir)
		}
	}
	return nil
}

// bufferBytes parses buffer_size, which accepts plain byte counts and
// human sizes such as "8KiB" or "32k".
func (c appConfig) bufferBytes() (int, error) {
	raw := strings.TrimSpace(c.BufferSize)
	if raw == "" {
		return defaultRelayBufferSize, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: buffer_size: %v", ErrConfig, err)
	}
	if n < minBufferSize || n > maxBufferSize {
		return 0, fmt.Errorf("%w: buffer_size %s outside %s..%s", ErrConfig,
			humanize.IBytes(n), humanize.IBytes(minBufferSize), humanize.IBytes(maxBufferSize))
	}
	return int(n), nil
}

// initialGeometry is the configured size, or the size of the terminal the
// bridge itself runs in when inherit_size is on and one is attached.
func (c appConfig) initialGeometry(host *os.File) Geometry {
	if c.InheritSize && host != nil {
		if g, ok := hostGeometry(host); ok {
			return g
		}
	}
	return Geometry{Rows: c.Rows, Cols: c.Cols}
}

// resolveShell picks the configured shell, then $SHELL, then the platform
// default. No PATH search or validation happens here.
func resolveShell(configured string) string {
	if s := strings.TrimSpace(configured); s != "" {
		return s
	}
	if s := strings.TrimSpace(os.Getenv("SHELL")); s != "" {
		return s
	}
	return defaultShell
}
