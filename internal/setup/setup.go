// Package setup registers the stdio server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key the server is registered under in mcpServers.
const ServerName = "pharmref"

const binaryName = "mcp-server-lite"

// ClientConfig is the subset of a desktop client config file that we touch.
// Unknown top-level keys are preserved on save.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`

	extra map[string]json.RawMessage
}

// ServerEntry is a single mcpServers entry.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options controls Register.
type Options struct {
	ConfigPath string // defaults to DefaultConfigPath()
	BinaryPath string // defaults to a lookup of mcp-server-lite
	DataDir    string
	RedisURL   string
	LogLevel   string
}

// Status describes what Inspect found.
type Status struct {
	ConfigPath   string
	Registered   bool
	BinaryPath   string
	BinaryExists bool
	DataDir      string
	DataDirFound bool
	Issues       []string
}

// DefaultConfigPath returns the Claude Desktop config location for this OS.
func DefaultConfigPath() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		dir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	return filepath.Join(dir, "claude_desktop_config.json"), nil
}

// Load reads a client config. A missing file yields an empty config.
func Load(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{MCPServers: map[string]ServerEntry{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return cfg, nil
}

// Save writes cfg back to path, creating the directory if needed.
func Save(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(cfg.extra)+1)
	for k, v := range cfg.extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the pharmref entry and returns it.
func Register(opts Options) (*ServerEntry, string, error) {
	path, err := configPath(opts.ConfigPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}

	binary := opts.BinaryPath
	if binary == "" {
		if binary, err = FindBinary(); err != nil {
			return nil, "", err
		}
	}

	entry := ServerEntry{Command: binary, Env: map[string]string{}}
	setEnv(entry.Env, "PHARMREF_DATA_DIR", opts.DataDir)
	setEnv(entry.Env, "PHARMREF_REDIS_URL", opts.RedisURL)
	setEnv(entry.Env, "PHARMREF_LOG_LEVEL", opts.LogLevel)
	cfg.MCPServers[ServerName] = entry

	if err := Save(path, cfg); err != nil {
		return nil, "", err
	}
	return &entry, path, nil
}

// Unregister removes the pharmref entry. It reports whether one was present.
func Unregister(path string) (bool, error) {
	path, err := configPath(path)
	if err != nil {
		return false, err
	}
	cfg, err := Load(path)
	if err != nil {
		return false, err
	}
	if _, ok := cfg.MCPServers[ServerName]; !ok {
		return false, nil
	}
	delete(cfg.MCPServers, ServerName)
	return true, Save(path, cfg)
}

// Inspect reports on the registration at path. defaultDataDir is used when
// the entry does not pin PHARMREF_DATA_DIR.
func Inspect(path, defaultDataDir string) (*Status, error) {
	path, err := configPath(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: path, DataDir: defaultDataDir}
	entry, ok := cfg.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "pharmref is not registered")
	} else {
		status.Registered = true
		status.BinaryPath = entry.Command
		if info, err := os.Stat(entry.Command); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
		} else if info.Mode()&0111 == 0 {
			status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
		} else {
			status.BinaryExists = true
		}
		if dir := entry.Env["PHARMREF_DATA_DIR"]; dir != "" {
			status.DataDir = dir
		}
	}

	if _, err := os.Stat(status.DataDir); err == nil {
		status.DataDirFound = true
	}
	return status, nil
}

// FindBinary looks for mcp-server-lite on PATH and in the usual build
// locations.
func FindBinary() (string, error) {
	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	candidates := []string{
		filepath.Join(".", binaryName),
		filepath.Join(".", "build", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", binaryName))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			if abs, err := filepath.Abs(c); err == nil {
				return abs, nil
			}
			return c, nil
		}
	}
	return "", fmt.Errorf("binary %q not found; pass --binary", binaryName)
}

func configPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DefaultConfigPath()
}

func setEnv(env map[string]string, key, value string) {
	if value != "" {
		env[key] = value
	}
}
