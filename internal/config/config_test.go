package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadParsesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "listen_address: \"127.0.0.1:2022\"\nbanner: \"test_server_1.0\"\nuser_store_backend: pam\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddress != "127.0.0.1:2022" {
		t.Errorf("ListenAddress = %q, want %q", cfg.ListenAddress, "127.0.0.1:2022")
	}
	if cfg.Banner != "test_server_1.0" {
		t.Errorf("Banner = %q, want %q", cfg.Banner, "test_server_1.0")
	}
	if cfg.UserStoreBackend != BackendPAM {
		t.Errorf("UserStoreBackend = %q, want %q", cfg.UserStoreBackend, BackendPAM)
	}
	// Fields absent from the file keep Default()'s values.
	if cfg.HostKeyPath != Default().HostKeyPath {
		t.Errorf("HostKeyPath = %q, want default %q", cfg.HostKeyPath, Default().HostKeyPath)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("AWA_SSH_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("AWA_SSH_BANNER", "env_banner")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("ListenAddress = %q, want %q", cfg.ListenAddress, "0.0.0.0:9999")
	}
	if cfg.Banner != "env_banner" {
		t.Errorf("Banner = %q, want %q", cfg.Banner, "env_banner")
	}
}
