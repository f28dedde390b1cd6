package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.SampleIntervalMs != 4000 {
		t.Errorf("sample interval = %d, want 4000", cfg.Monitor.SampleIntervalMs)
	}
	if cfg.Monitor.Sensitivity != 2 {
		t.Errorf("sensitivity = %d, want 2", cfg.Monitor.Sensitivity)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
version = 1

[monitor]
sensitivity = 4
sample_interval_ms = 6000

[classifier]
model = "gpt-5"

[audio]
base_volume = 0.8
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.Sensitivity != 4 {
		t.Errorf("sensitivity = %d, want 4", cfg.Monitor.Sensitivity)
	}
	if cfg.Monitor.SampleIntervalMs != 6000 {
		t.Errorf("sample interval = %d, want 6000", cfg.Monitor.SampleIntervalMs)
	}
	if cfg.Classifier.Model != "gpt-5" {
		t.Errorf("model = %q, want gpt-5", cfg.Classifier.Model)
	}
	if cfg.Audio.BaseVolume != 0.8 {
		t.Errorf("base volume = %v, want 0.8", cfg.Audio.BaseVolume)
	}
	// Untouched sections keep defaults.
	if cfg.Server.ListenAddr != "127.0.0.1:8750" {
		t.Errorf("listen addr = %q, want default", cfg.Server.ListenAddr)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
version: 1
monitor:
  sensitivity: 3
storage:
  type: memory
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.Sensitivity != 3 {
		t.Errorf("sensitivity = %d, want 3", cfg.Monitor.Sensitivity)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage type = %q, want memory", cfg.Storage.Type)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FOCUSD_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("FOCUSD_SENSITIVITY", "5")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("listen addr = %q, want env override", cfg.Server.ListenAddr)
	}
	if cfg.Monitor.Sensitivity != 5 {
		t.Errorf("sensitivity = %d, want 5", cfg.Monitor.Sensitivity)
	}
	if cfg.Classifier.APIKey != "sk-test" {
		t.Errorf("api key = %q, want env value", cfg.Classifier.APIKey)
	}
}

func TestValidationRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sensitivity too high", func(c *Config) { c.Monitor.Sensitivity = 6 }},
		{"sensitivity zero", func(c *Config) { c.Monitor.Sensitivity = 0 }},
		{"interval too short", func(c *Config) { c.Monitor.SampleIntervalMs = 100 }},
		{"volume out of range", func(c *Config) { c.Audio.BaseVolume = 1.5 }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "redis" }},
		{"bad listen addr", func(c *Config) { c.Server.ListenAddr = "not-an-addr" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"empty model", func(c *Config) { c.Classifier.Model = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Monitor.Sensitivity = 3
	cfg.Audio.BaseVolume = 0.25
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Monitor.Sensitivity != 3 {
		t.Errorf("sensitivity = %d, want 3", loaded.Monitor.Sensitivity)
	}
	if loaded.Audio.BaseVolume != 0.25 {
		t.Errorf("base volume = %v, want 0.25", loaded.Audio.BaseVolume)
	}
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if !created {
		t.Error("created = false for missing file")
	}
	if cfg.Monitor.Sensitivity != 2 {
		t.Errorf("sensitivity = %d, want 2", cfg.Monitor.Sensitivity)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate: %v", err)
	}
	if created {
		t.Error("created = true for existing file")
	}
}

func TestLoaderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	writeCfg := func(sensitivity int) {
		t.Helper()
		cfg := DefaultConfig()
		cfg.Monitor.Sensitivity = sensitivity
		if err := SaveConfig(cfg, path); err != nil {
			t.Fatal(err)
		}
	}
	writeCfg(2)

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loader.Close()

	reloaded := make(chan *Config, 1)
	loader.OnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeCfg(5)

	select {
	case cfg := <-reloaded:
		if cfg.Monitor.Sensitivity != 5 {
			t.Errorf("reloaded sensitivity = %d, want 5", cfg.Monitor.Sensitivity)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestLoaderRejectsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loader.Close()
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	bad := DefaultConfig()
	bad.Monitor.Sensitivity = 99
	if err := SaveConfig(bad, path); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-loader.Errors():
		if err == nil {
			t.Error("expected validation error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}

	if got := loader.Config().Monitor.Sensitivity; got != 2 {
		t.Errorf("active sensitivity = %d, want unchanged 2", got)
	}
}

// Registrations from daemon wiring can overlap with a reload triggered by
// the watcher. Both touch the callback list, so they must not race.
func TestOnChangeDuringReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := SaveConfig(DefaultConfig(), path); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loader.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			loader.OnChange(func(*Config) {})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			loader.reload()
		}
	}()
	wg.Wait()
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	clone := cfg.Clone()
	clone.Server.AllowedOrigins[0] = "http://evil.example"
	if cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Error("Clone shares AllowedOrigins with original")
	}
}
