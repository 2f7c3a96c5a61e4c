package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// AppName is the directory name used under the XDG base directories.
const AppName = "ringsnap"

// Config represents the main configuration structure
type Config struct {
	Server ServerConfig `yaml:"server"`
	Rules  RulesConfig  `yaml:"rules"`
	Match  MatchConfig  `yaml:"match"`
	Icons  IconsConfig  `yaml:"icons"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds the local editing API settings
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// RulesConfig controls where the rule list lives
type RulesConfig struct {
	// File 为规则文件路径；留空时使用 XDG 数据目录下的 ringsnap/rules.json。
	File string `yaml:"file"`
	// Watch 为 true 时，外部编辑规则文件会被自动重新加载。
	Watch bool `yaml:"watch"`
}

// MatchConfig holds match engine options
type MatchConfig struct {
	CaseInsensitive bool `yaml:"case_insensitive"`
}

// IconsConfig holds favicon settings
type IconsConfig struct {
	Size int `yaml:"size"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

const (
	minIconSize = 16
	maxIconSize = 256
)

// Default configuration values
var defaultConfig = Config{
	Server: ServerConfig{
		Listen: "127.0.0.1:28658",
	},
	Rules: RulesConfig{
		File:  "",
		Watch: true,
	},
	Match: MatchConfig{
		CaseInsensitive: false,
	},
	Icons: IconsConfig{
		Size: 32,
	},
	Log: LogConfig{
		Level: "info",
		File:  "~/.ringsnap/ringsnap.log",
	},
}

// Default returns a copy of the built-in configuration.
func Default() Config {
	return defaultConfig
}

// ConfigPath returns the expanded config file path
func ConfigPath() string {
	if cfgPath := os.Getenv("RINGSNAP_CONFIG"); cfgPath != "" {
		return expandPath(cfgPath)
	}
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// ProjectConfigPath returns the project-level config path
func ProjectConfigPath() string {
	return ".ringsnap.yaml"
}

// homeDir returns the user's home directory
func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	return os.Getenv("USERPROFILE") // Windows
}

// GetConfigDir returns the config directory path
func GetConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DataDir returns the data directory path
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultRulesPath is the rules file used when neither the config nor RINGSNAP_RULES
// names one.
func DefaultRulesPath() string {
	return filepath.Join(DataDir(), "rules.json")
}

// Load loads configuration from the given file path
func Load(cfgFile string) (*Manager, error) {
	m := NewManager()

	// Determine config path
	var configPath string
	if cfgFile != "" {
		configPath = expandPath(cfgFile)
	} else {
		configPath = ConfigPath()
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	m.configPath = configPath

	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// ExpandPath expands ~ in path
func ExpandPath(path string) string {
	return expandPath(path)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// Manager handles config loading, merging, and hot-reload
type Manager struct {
	mu      sync.RWMutex
	config  Config
	watcher *fsnotify.Watcher
	// configPath 为全局配置文件路径（用于读写与监听）。当通过 CLI --config 指定时，应写入该路径。
	configPath string
	// projectPath 为项目级覆盖配置路径（默认 .ringsnap.yaml）。
	projectPath string
}

// NewManager creates a new config manager
func NewManager() *Manager {
	globalPath := ConfigPath()
	if abs, err := filepath.Abs(globalPath); err == nil {
		globalPath = abs
	}
	projectPath := ProjectConfigPath()
	if abs, err := filepath.Abs(projectPath); err == nil {
		projectPath = abs
	}
	return &Manager{
		config:      defaultConfig,
		configPath:  globalPath,
		projectPath: projectPath,
	}
}

// Path returns the global config file path used for reading, writing and watching.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configPath
}

// Load loads configuration from file
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with default config
	cfg := defaultConfig

	// Load global config if exists
	globalPath := m.configPath
	if globalPath == "" {
		globalPath = ConfigPath()
	}
	if data, err := os.ReadFile(globalPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return err
		}
		slog.Debug("Loaded config", "path", globalPath)
	} else if !os.IsNotExist(err) {
		return err
	}

	// Load project config if exists (merges with global)
	projectPath := m.projectPath
	if projectPath == "" {
		projectPath = ProjectConfigPath()
	}
	if data, err := os.ReadFile(projectPath); err == nil {
		var projectCfg projectConfig
		if err := yaml.Unmarshal(data, &projectCfg); err != nil {
			return err
		}
		// 项目配置中的相对规则路径以项目配置文件所在目录为基准。
		if f := projectCfg.Rules.File; f != "" && !filepath.IsAbs(expandPath(f)) {
			projectCfg.Rules.File = filepath.Join(filepath.Dir(projectPath), f)
		}
		cfg = mergeConfigs(cfg, projectCfg)
		slog.Debug("Merged project config", "path", projectPath)
	} else if !os.IsNotExist(err) {
		return err
	}

	sanitizeLoadedConfig(&cfg)

	m.config = cfg
	return nil
}

func sanitizeLoadedConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Server.Listen = strings.TrimSpace(cfg.Server.Listen)
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultConfig.Server.Listen
	}

	cfg.Rules.File = SanitizeText(cfg.Rules.File)

	switch {
	case cfg.Icons.Size <= 0:
		cfg.Icons.Size = defaultConfig.Icons.Size
	case cfg.Icons.Size < minIconSize:
		cfg.Icons.Size = minIconSize
	case cfg.Icons.Size > maxIconSize:
		cfg.Icons.Size = maxIconSize
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
}

// Get returns the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// RulesPath resolves the rules file: RINGSNAP_RULES, then rules.file, then the XDG
// data directory.
func (m *Manager) RulesPath() string {
	if p := strings.TrimSpace(os.Getenv("RINGSNAP_RULES")); p != "" {
		return absPath(expandPath(p))
	}
	m.mu.RLock()
	file := m.config.Rules.File
	m.mu.RUnlock()
	if file != "" {
		return absPath(expandPath(file))
	}
	return DefaultRulesPath()
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Update applies a mutation function to the config and saves to disk
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.config)
	sanitizeLoadedConfig(&m.config)
	return m.saveLocked()
}

// saveLocked writes the current config to disk (must be called with mu held)
func (m *Manager) saveLocked() error {
	data, err := yaml.Marshal(&m.config)
	if err != nil {
		return err
	}
	cfgPath := m.configPath
	if cfgPath == "" {
		cfgPath = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return err
	}
	// 保底：若文件已存在，WriteFile 不一定会覆盖权限；这里再 chmod 一次。
	_ = os.Chmod(cfgPath, 0600)
	return nil
}

// Watch starts watching for config file changes
func (m *Manager) Watch(onChange func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		return nil // Already watching
	}

	// Watch global config directory
	cfgPath := m.configPath
	if cfgPath == "" {
		cfgPath = ConfigPath()
	}
	cfgPath = filepath.Clean(cfgPath)
	globalDir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(globalDir, 0700); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(globalDir); err != nil {
		_ = watcher.Close()
		return err
	}
	m.watcher = watcher

	// Watch project config if exists
	projectPath := m.projectPath
	if projectPath == "" {
		projectPath = ProjectConfigPath()
	}
	projectPath = filepath.Clean(projectPath)
	if _, err := os.Stat(projectPath); err == nil {
		if err := watcher.Add(filepath.Dir(projectPath)); err != nil {
			return err
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Check if it's a config file change
				name := filepath.Clean(event.Name)
				if name == cfgPath || name == projectPath {
					slog.Info("Config file changed, reloading...")
					if err := m.Load(); err != nil {
						slog.Error("Failed to reload config", "error", err)
					} else if onChange != nil {
						onChange()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher error", "error", err)
			}
		}
	}()

	return nil
}

// Close stops the config watcher
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		err := m.watcher.Close()
		m.watcher = nil
		return err
	}
	return nil
}

// projectConfig is the overlay read from .ringsnap.yaml. Booleans are pointers so an
// absent key does not reset the global value.
type projectConfig struct {
	Server ServerConfig `yaml:"server"`
	Rules  struct {
		File  string `yaml:"file"`
		Watch *bool  `yaml:"watch"`
	} `yaml:"rules"`
	Match struct {
		CaseInsensitive *bool `yaml:"case_insensitive"`
	} `yaml:"match"`
	Icons IconsConfig `yaml:"icons"`
	Log   LogConfig   `yaml:"log"`
}

// mergeConfigs merges project config over global config
func mergeConfigs(global Config, project projectConfig) Config {
	result := global

	// Override scalar values if set in project
	if project.Server.Listen != "" {
		result.Server.Listen = project.Server.Listen
	}
	if project.Rules.File != "" {
		result.Rules.File = project.Rules.File
	}
	if project.Rules.Watch != nil {
		result.Rules.Watch = *project.Rules.Watch
	}
	if project.Match.CaseInsensitive != nil {
		result.Match.CaseInsensitive = *project.Match.CaseInsensitive
	}
	if project.Icons.Size != 0 {
		result.Icons.Size = project.Icons.Size
	}
	if project.Log.Level != "" {
		result.Log.Level = project.Log.Level
	}
	if project.Log.File != "" {
		result.Log.File = project.Log.File
	}

	return result
}
