package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/alphabridge/alphabridge/internal/pkg/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
bind: ":8080"
legacyHost: legacy.example.com
mojang:
  requestTimeout: 3s
sessions:
  storage: redis
  ttl: 5m
  redis:
    uri: redis://localhost:6379/0
textures:
  maxSkinSize: 2MB
`)

	cfg, data, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Bind != ":8080" {
		t.Errorf("got bind %q; want \":8080\"", cfg.Bind)
	}
	if cfg.LegacyHost != "legacy.example.com" {
		t.Errorf("got legacyHost %q", cfg.LegacyHost)
	}
	if cfg.Mojang.RequestTimeout != 3*time.Second {
		t.Errorf("got mojang request timeout %v; want 3s", cfg.Mojang.RequestTimeout)
	}
	if cfg.Sessions.Storage != config.StorageRedis {
		t.Errorf("got sessions storage %q; want %q", cfg.Sessions.Storage, config.StorageRedis)
	}
	if cfg.Sessions.TTL != 5*time.Minute {
		t.Errorf("got sessions ttl %v; want 5m", cfg.Sessions.TTL)
	}
	if cfg.Sessions.Redis.URI != "redis://localhost:6379/0" {
		t.Errorf("got redis uri %q", cfg.Sessions.Redis.URI)
	}
	if cfg.Textures.MaxSkinSize != 2*datasize.MB {
		t.Errorf("got max skin size %v; want 2MB", cfg.Textures.MaxSkinSize)
	}

	// Untouched values fall back to the defaults.
	def := config.DefaultConfig()
	if cfg.Mojang.ProfileURL != def.Mojang.ProfileURL {
		t.Errorf("got profile url %q; want the default", cfg.Mojang.ProfileURL)
	}
	if cfg.OptiFine.CapeBaseURL != def.OptiFine.CapeBaseURL {
		t.Errorf("got cape base url %q; want the default", cfg.OptiFine.CapeBaseURL)
	}
	if cfg.Profiles.Storage != config.StorageMemory {
		t.Errorf("got profiles storage %q; want %q", cfg.Profiles.Storage, config.StorageMemory)
	}

	if data == nil {
		t.Fatal("expected the raw settings map")
	}
	if _, ok := data["bind"]; !ok {
		t.Error("raw settings are missing the bind key")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
bind: ":8080"
sessions:
  ttl: 5m
`)

	t.Setenv("ALPHABRIDGE_BIND", ":9000")
	t.Setenv("ALPHABRIDGE_SESSIONS_TTL", "2m")
	t.Setenv("ALPHABRIDGE_MOJANG_REQUESTTIMEOUT", "3s")

	cfg, _, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// The environment wins over both the file and the defaults.
	if cfg.Bind != ":9000" {
		t.Errorf("got bind %q; want \":9000\"", cfg.Bind)
	}
	if cfg.Sessions.TTL != 2*time.Minute {
		t.Errorf("got sessions ttl %v; want 2m", cfg.Sessions.TTL)
	}
	if cfg.Mojang.RequestTimeout != 3*time.Second {
		t.Errorf("got mojang request timeout %v; want 3s", cfg.Mojang.RequestTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestUnmarshal(t *testing.T) {
	type pluginConfig struct {
		Enable  bool              `mapstructure:"enable"`
		Timeout time.Duration     `mapstructure:"timeout"`
		Size    datasize.ByteSize `mapstructure:"size"`
		Topics  []string          `mapstructure:"topics"`
	}

	data := map[string]any{
		"enable":  true,
		"timeout": "30s",
		"size":    "4MB",
		"topics":  "join,check",
	}

	var cfg pluginConfig
	if err := config.Unmarshal(data, &cfg); err != nil {
		t.Fatal(err)
	}

	if !cfg.Enable {
		t.Error("got enable false; want true")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("got timeout %v; want 30s", cfg.Timeout)
	}
	if cfg.Size != 4*datasize.MB {
		t.Errorf("got size %v; want 4MB", cfg.Size)
	}
	if len(cfg.Topics) != 2 || cfg.Topics[0] != "join" || cfg.Topics[1] != "check" {
		t.Errorf("got topics %v; want [join check]", cfg.Topics)
	}
}

func TestUnmarshalRejectsBadByteSize(t *testing.T) {
	var cfg struct {
		Size datasize.ByteSize `mapstructure:"size"`
	}
	if err := config.Unmarshal(map[string]any{"size": "lots"}, &cfg); err == nil {
		t.Fatal("expected an error for an unparsable byte size")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := config.WriteDefault(path); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	def := config.DefaultConfig()
	if cfg.Bind != def.Bind {
		t.Errorf("got bind %q; want %q", cfg.Bind, def.Bind)
	}
	if cfg.Sessions.Storage != def.Sessions.Storage {
		t.Errorf("got sessions storage %q; want %q", cfg.Sessions.Storage, def.Sessions.Storage)
	}
	if cfg.Textures.MaxSkinSize != def.Textures.MaxSkinSize {
		t.Errorf("got max skin size %v; want %v", cfg.Textures.MaxSkinSize, def.Textures.MaxSkinSize)
	}
	if cfg.Mojang.RequestTimeout != def.Mojang.RequestTimeout {
		t.Errorf("got request timeout %v; want %v", cfg.Mojang.RequestTimeout, def.Mojang.RequestTimeout)
	}
}
