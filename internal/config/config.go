// Package config handles configuration loading for assetflow.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/assetflow/pkg/models"
)

// ProjectConfigName is the project-level config file searched for from the
// working directory upwards.
const ProjectConfigName = ".assetflow.yaml"

// StateDirName holds run history and debug logs inside the project root.
const StateDirName = ".assetflow"

// Config holds all configuration for assetflow. It is built once by Load and
// passed by value; nothing in the program mutates it afterwards.
type Config struct {
	// Root is the absolute project root every relative path is resolved against.
	Root        string        `mapstructure:"root" yaml:"root"`
	Env         models.Env    `mapstructure:"env" yaml:"env"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Paths       Paths         `mapstructure:"paths" yaml:"paths"`
	Files       FilesConfig   `mapstructure:"files" yaml:"files"`
	Server      ServerConfig  `mapstructure:"server" yaml:"server"`
	Proxy       ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	Images      ImagesConfig  `mapstructure:"images" yaml:"images"`
	Styles      StylesConfig  `mapstructure:"styles" yaml:"styles"`
	Tools       ToolsConfig   `mapstructure:"tools" yaml:"tools"`
	Archive     ArchiveConfig `mapstructure:"archive" yaml:"archive"`
	History     HistoryConfig `mapstructure:"history" yaml:"history"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
	Tasks       []TaskConfig  `mapstructure:"tasks" yaml:"tasks,omitempty"`
}

// FilesConfig names vendor inputs and pipeline outputs.
type FilesConfig struct {
	// VendorScripts are concatenated ahead of project scripts.
	VendorScripts []string `mapstructure:"vendor_scripts" yaml:"vendor_scripts"`
	// VendorStyles are concatenated ahead of project styles.
	VendorStyles []string `mapstructure:"vendor_styles" yaml:"vendor_styles"`
	ScriptsOut   string   `mapstructure:"scripts_out" yaml:"scripts_out"`
	TSOut        string   `mapstructure:"ts_out" yaml:"ts_out"`
	StylesOut    string   `mapstructure:"styles_out" yaml:"styles_out"`
	MainScript   string   `mapstructure:"main_script" yaml:"main_script"`
	MainStyle    string   `mapstructure:"main_style" yaml:"main_style"`
	VendorScript string   `mapstructure:"vendor_script" yaml:"vendor_script"`
	VendorStyle  string   `mapstructure:"vendor_style" yaml:"vendor_style"`
	Favicon      string   `mapstructure:"favicon" yaml:"favicon"`
	Archive      string   `mapstructure:"archive" yaml:"archive"`
	// ConcatSeparator is inserted between concatenated files.
	ConcatSeparator string `mapstructure:"concat_separator" yaml:"concat_separator"`
}

// ServerConfig holds development server supervisor settings.
type ServerConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Script  string   `mapstructure:"script" yaml:"script"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
	// Watch lists directories whose changes restart the server.
	Watch []string `mapstructure:"watch" yaml:"watch"`
	// Ignore uses .gitignore syntax relative to the project root.
	Ignore          []string           `mapstructure:"ignore" yaml:"ignore"`
	ShutdownTimeout time.Duration      `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CrashRestart    CrashRestartConfig `mapstructure:"crash_restart" yaml:"crash_restart"`
}

// CrashRestartConfig controls automatic restarts after the server crashes.
type CrashRestartConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Initial     time.Duration `mapstructure:"initial" yaml:"initial"`
	Max         time.Duration `mapstructure:"max" yaml:"max"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ProxyConfig holds live-reload relay settings.
type ProxyConfig struct {
	// Target is the host:port of the supervised server.
	Target string `mapstructure:"target" yaml:"target"`
	// Port is where the relay listens; it must differ from Target's port.
	Port        int           `mapstructure:"port" yaml:"port"`
	Notify      bool          `mapstructure:"notify" yaml:"notify"`
	ReloadDelay time.Duration `mapstructure:"reload_delay" yaml:"reload_delay"`
}

// ImagesConfig holds image optimizer settings.
type ImagesConfig struct {
	OptimizationLevel int `mapstructure:"optimization_level" yaml:"optimization_level"`
	// JPEGQuality re-encodes JPEGs at this quality (1-100). Zero keeps JPEGs
	// byte for byte.
	JPEGQuality int `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

// StylesConfig holds stylesheet compiler settings.
type StylesConfig struct {
	// Browsers are esbuild engine targets, e.g. "chrome120" or "safari16".
	Browsers        []string `mapstructure:"browsers" yaml:"browsers"`
	SassOutputStyle string   `mapstructure:"sass_output_style" yaml:"sass_output_style"`
}

// ToolsConfig names external binaries.
type ToolsConfig struct {
	Sass string `mapstructure:"sass" yaml:"sass"`
}

// ArchiveConfig holds archive task settings.
type ArchiveConfig struct {
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// File is an optional debug log path relative to the project root.
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// TaskConfig declares a project-specific task that runs a shell command.
type TaskConfig struct {
	Name        string   `mapstructure:"name" yaml:"name"`
	Description string   `mapstructure:"description" yaml:"description,omitempty"`
	Deps        []string `mapstructure:"deps" yaml:"deps,omitempty"`
	// Run is executed with "sh -c" in the project root. Empty means no-op.
	Run string `mapstructure:"run" yaml:"run,omitempty"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (NODE_ENV, ASSETFLOW_LOG_LEVEL, ASSETFLOW_CONCURRENCY)
// 2. Project config (.assetflow.yaml in root or a parent)
// 3. User config (~/.config/assetflow/config.yaml)
// 4. Built-in defaults
//
// If root is empty the directory holding the project config is used, falling
// back to the working directory.
func Load(root string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	start := root
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		start = wd
	}

	projectConfig := findProjectConfig(start)
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
		if root == "" {
			start = filepath.Dir(projectConfig)
		}
	}

	bindEnv(v)

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.finalize(start); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file. The project root is
// the directory containing the file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if err := cfg.finalize(filepath.Dir(abs)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the project config found from dir, or "".
func GetProjectConfigPath(dir string) string {
	return findProjectConfig(dir)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// finalize resolves the root, normalizes the env flag and validates.
func (c *Config) finalize(defaultRoot string) error {
	if c.Root == "" {
		c.Root = defaultRoot
	} else if !filepath.IsAbs(c.Root) {
		c.Root = filepath.Join(defaultRoot, c.Root)
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	c.Root = abs
	c.Env = models.ParseEnv(string(c.Env))
	return c.Validate()
}

// bindEnv maps the environment variables assetflow honours.
func bindEnv(v *viper.Viper) {
	v.BindEnv("env", "NODE_ENV")
	v.BindEnv("log.level", "ASSETFLOW_LOG_LEVEL")
	v.BindEnv("log.format", "ASSETFLOW_LOG_FORMAT")
	v.BindEnv("concurrency", "ASSETFLOW_CONCURRENCY")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", string(models.EnvDevelopment))
	v.SetDefault("concurrency", 4)

	v.SetDefault("paths.src", "client/src")
	v.SetDefault("paths.src_segment", "src")
	v.SetDefault("paths.dist_segment", "dist")
	v.SetDefault("paths.scripts", "scripts")
	v.SetDefault("paths.styles", "styles")
	v.SetDefault("paths.images", "images")
	v.SetDefault("paths.vendor", "node_modules")

	v.SetDefault("files.vendor_scripts", []string{
		"node_modules/jquery/dist/jquery.js",
		"node_modules/bootstrap/dist/js/bootstrap.js",
	})
	v.SetDefault("files.vendor_styles", []string{
		"node_modules/bootstrap/dist/css/bootstrap.css",
	})
	v.SetDefault("files.scripts_out", "scripts.js")
	v.SetDefault("files.ts_out", "scripts-ts.js")
	v.SetDefault("files.styles_out", "styles.css")
	v.SetDefault("files.main_script", "main.js")
	v.SetDefault("files.main_style", "main.css")
	v.SetDefault("files.vendor_script", "vendor.js")
	v.SetDefault("files.vendor_style", "vendor.css")
	v.SetDefault("files.favicon", "favicon.ico")
	v.SetDefault("files.archive", "_archive.zip")
	v.SetDefault("files.concat_separator", "")

	v.SetDefault("server.command", "node")
	v.SetDefault("server.script", "./server/bin/www")
	v.SetDefault("server.watch", []string{"."})
	v.SetDefault("server.ignore", []string{"node_modules/", StateDirName + "/", ProjectConfigName})
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.crash_restart.enabled", false)
	v.SetDefault("server.crash_restart.initial", "1s")
	v.SetDefault("server.crash_restart.max", "10s")
	v.SetDefault("server.crash_restart.max_attempts", 5)

	v.SetDefault("proxy.target", "localhost:3000")
	v.SetDefault("proxy.port", 3001)
	v.SetDefault("proxy.notify", true)
	v.SetDefault("proxy.reload_delay", "500ms")

	v.SetDefault("images.optimization_level", 5)
	v.SetDefault("images.jpeg_quality", 0)

	v.SetDefault("styles.browsers", defaultBrowsers)
	v.SetDefault("styles.sass_output_style", "expanded")

	v.SetDefault("tools.sass", "sass")

	v.SetDefault("archive.exclude", []string{"node_modules/**", StateDirName + "/**"})

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", StateDirName+"/history.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// defaultBrowsers approximates "last 2 versions" of the evergreen browsers.
var defaultBrowsers = []string{"chrome120", "edge120", "firefox121", "safari16", "ios16"}

// getUserConfigDir returns the XDG config directory for assetflow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "assetflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "assetflow")
	}
	return filepath.Join(home, ".config", "assetflow")
}

// findProjectConfig searches for .assetflow.yaml in dir and its parents.
func findProjectConfig(dir string) string {
	cwd, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values rooted at root.
func Default(root string) *Config {
	return &Config{
		Root:        root,
		Env:         models.EnvDevelopment,
		Concurrency: 4,
		Paths: Paths{
			Src:         "client/src",
			SrcSegment:  "src",
			DistSegment: "dist",
			Scripts:     "scripts",
			Styles:      "styles",
			Images:      "images",
			Vendor:      "node_modules",
		},
		Files: FilesConfig{
			VendorScripts: []string{
				"node_modules/jquery/dist/jquery.js",
				"node_modules/bootstrap/dist/js/bootstrap.js",
			},
			VendorStyles: []string{
				"node_modules/bootstrap/dist/css/bootstrap.css",
			},
			ScriptsOut:   "scripts.js",
			TSOut:        "scripts-ts.js",
			StylesOut:    "styles.css",
			MainScript:   "main.js",
			MainStyle:    "main.css",
			VendorScript: "vendor.js",
			VendorStyle:  "vendor.css",
			Favicon:      "favicon.ico",
			Archive:      "_archive.zip",
		},
		Server: ServerConfig{
			Command:         "node",
			Script:          "./server/bin/www",
			Watch:           []string{"."},
			Ignore:          []string{"node_modules/", StateDirName + "/", ProjectConfigName},
			ShutdownTimeout: 5 * time.Second,
			CrashRestart: CrashRestartConfig{
				Initial:     time.Second,
				Max:         10 * time.Second,
				MaxAttempts: 5,
			},
		},
		Proxy: ProxyConfig{
			Target:      "localhost:3000",
			Port:        3001,
			Notify:      true,
			ReloadDelay: 500 * time.Millisecond,
		},
		Images: ImagesConfig{OptimizationLevel: 5},
		Styles: StylesConfig{
			Browsers:        append([]string(nil), defaultBrowsers...),
			SassOutputStyle: "expanded",
		},
		Tools:   ToolsConfig{Sass: "sass"},
		Archive: ArchiveConfig{Exclude: []string{"node_modules/**", StateDirName + "/**"}},
		History: HistoryConfig{Enabled: true, Path: StateDirName + "/history.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Abs returns rel resolved against the project root.
func (c *Config) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}
