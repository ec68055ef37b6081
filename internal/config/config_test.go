package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/assetflow/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default("/project")

	if cfg.Env != models.EnvDevelopment {
		t.Errorf("expected default env development, got %q", cfg.Env)
	}

	if cfg.Paths.Dist() != "client/dist" {
		t.Errorf("expected dist root client/dist, got %q", cfg.Paths.Dist())
	}

	if cfg.Proxy.Target != "localhost:3000" || cfg.Proxy.Port != 3001 {
		t.Errorf("expected proxy localhost:3000 -> 3001, got %s -> %d", cfg.Proxy.Target, cfg.Proxy.Port)
	}

	if cfg.Server.Script != "./server/bin/www" {
		t.Errorf("expected server script ./server/bin/www, got %q", cfg.Server.Script)
	}

	if cfg.Server.CrashRestart.Enabled {
		t.Error("expected crash restart to be disabled by default")
	}

	if cfg.Images.OptimizationLevel != 5 {
		t.Errorf("expected optimization level 5, got %d", cfg.Images.OptimizationLevel)
	}

	if cfg.Files.ConcatSeparator != "" {
		t.Errorf("expected empty concat separator, got %q", cfg.Files.ConcatSeparator)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("NODE_ENV", "")
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ProjectConfigName)

	configContent := `
env: production
concurrency: 2
paths:
  src: web/src
proxy:
  target: localhost:8080
  port: 8081
  reload_delay: 250ms
server:
  script: ./bin/server
  crash_restart:
    enabled: true
    max: 30s
tasks:
  - name: lint
    run: npm run lint
  - name: ci
    deps: [lint, build]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Root != tmpDir {
		t.Errorf("Root = %q, want %q", cfg.Root, tmpDir)
	}
	if cfg.Env != models.EnvProduction {
		t.Errorf("Env = %q, want production", cfg.Env)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Concurrency)
	}
	if got := cfg.Paths.DistScripts(); got != "web/dist/scripts" {
		t.Errorf("DistScripts() = %q, want web/dist/scripts", got)
	}
	if cfg.Proxy.ReloadDelay != 250*time.Millisecond {
		t.Errorf("ReloadDelay = %v, want 250ms", cfg.Proxy.ReloadDelay)
	}
	if !cfg.Server.CrashRestart.Enabled || cfg.Server.CrashRestart.Max != 30*time.Second {
		t.Errorf("CrashRestart = %+v, want enabled with max 30s", cfg.Server.CrashRestart)
	}
	// Unset keys keep their defaults.
	if cfg.Server.CrashRestart.Initial != time.Second {
		t.Errorf("CrashRestart.Initial = %v, want default 1s", cfg.Server.CrashRestart.Initial)
	}
	if cfg.Files.StylesOut != "styles.css" {
		t.Errorf("StylesOut = %q, want default styles.css", cfg.Files.StylesOut)
	}

	want := []TaskConfig{
		{Name: "lint", Run: "npm run lint"},
		{Name: "ci", Deps: []string{"lint", "build"}},
	}
	if diff := cmp.Diff(want, cfg.Tasks); diff != "" {
		t.Errorf("Tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromPath_NodeEnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ProjectConfigName)
	if err := os.WriteFile(configPath, []byte("env: development\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	tests := []struct {
		nodeEnv string
		want    models.Env
	}{
		{"production", models.EnvProduction},
		{"staging", models.EnvDevelopment},
		{"PRODUCTION", models.EnvDevelopment},
	}
	for _, tt := range tests {
		t.Run(tt.nodeEnv, func(t *testing.T) {
			t.Setenv("NODE_ENV", tt.nodeEnv)
			cfg, err := LoadFromPath(configPath)
			if err != nil {
				t.Fatalf("LoadFromPath failed: %v", err)
			}
			if cfg.Env != tt.want {
				t.Errorf("NODE_ENV=%q: Env = %q, want %q", tt.nodeEnv, cfg.Env, tt.want)
			}
		})
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_FindsProjectConfigInParent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NODE_ENV", "")
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ProjectConfigName), []byte("proxy:\n  port: 4001\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	nested := filepath.Join(root, "client", "src")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cfg, err := Load(nested)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Proxy.Port != 4001 {
		t.Errorf("Proxy.Port = %d, want 4001 from project config", cfg.Proxy.Port)
	}
	// An explicit root wins over the config location.
	if cfg.Root != nested {
		t.Errorf("Root = %q, want %q", cfg.Root, nested)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	content := "paths:\n  src: client/assets\n"
	if err := os.WriteFile(filepath.Join(root, ProjectConfigName), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(root)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load error = %v, want ErrInvalidConfig", err)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := getUserConfigDir(); got != "/tmp/xdg/assetflow" {
		t.Errorf("getUserConfigDir() = %q, want /tmp/xdg/assetflow", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"proxy port collides with target", func(c *Config) { c.Proxy.Port = 3000 }},
		{"proxy port out of range", func(c *Config) { c.Proxy.Port = 70000 }},
		{"optimization level too high", func(c *Config) { c.Images.OptimizationLevel = 9 }},
		{"jpeg quality too high", func(c *Config) { c.Images.JPEGQuality = 101 }},
		{"unnamed task", func(c *Config) { c.Tasks = []TaskConfig{{Run: "true"}} }},
		{"duplicate task", func(c *Config) { c.Tasks = []TaskConfig{{Name: "a"}, {Name: "a"}} }},
		{"unknown env", func(c *Config) { c.Env = "staging" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/project")
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestAbs(t *testing.T) {
	cfg := Default("/project")
	if got := cfg.Abs("client/dist"); got != "/project/client/dist" {
		t.Errorf("Abs(client/dist) = %q", got)
	}
	if got := cfg.Abs("/etc/hosts"); got != "/etc/hosts" {
		t.Errorf("Abs(/etc/hosts) = %q", got)
	}
}
