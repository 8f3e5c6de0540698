package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesStarterConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sautisahihi.json")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 3380 {
		t.Errorf("default port = %d", cfg.Gateway.Port)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("starter config not written")
	}

	// Second load reads the written file.
	again, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Gateway.Port != cfg.Gateway.Port {
		t.Error("reloaded config differs")
	}
}

func TestLoadRejectsUnknownChainProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sautisahihi.json")
	bad := `{
		"gateway": {"port": 3380},
		"providers": {"gemini": {"driver": "gemini"}},
		"chains": {"news": ["nonexistent"]}
	}`
	if err := os.WriteFile(path, []byte(bad), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("config with unknown chain provider accepted")
	}
}

func TestLoadRejectsBadNewsLanguage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sautisahihi.json")
	bad := `{"news": {"languages": ["FRA"]}}`
	if err := os.WriteFile(path, []byte(bad), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("config with unknown news language accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SAUTICORE_PORT", "4444")
	t.Setenv("SAUTICORE_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "sautisahihi.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 4444 {
		t.Errorf("port = %d, env override ignored", cfg.Gateway.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %s, env override ignored", cfg.Log.Level)
	}
}

func TestAtomicWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.json")
	if err := AtomicWriteJSON(path, map[string]int{"a": 1}, 0600); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{\n  \"a\": 1\n}" {
		t.Errorf("written = %q", data)
	}
}
