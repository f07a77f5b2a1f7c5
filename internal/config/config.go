// Package config loads server configuration for cmd/awasshd: listen
// address, host-key path, user-database path and backend, and the
// banner string the transport layer advertises. It generalizes the
// teacher's directory-only GetConfigDir into a full YAML-backed loader
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// UserStoreBackend selects which internal/userstore implementation
// cmd/awasshd wires into the session façade.
type UserStoreBackend string

const (
	BackendJSON UserStoreBackend = "json"
	BackendPAM  UserStoreBackend = "pam"
)

// Config is the full set of values a host needs to run the server, read
// from a YAML file and overridable by environment variables so deployment
// tooling never has to rewrite the file on disk.
type Config struct {
	// ListenAddress is a "host:port" string, e.g. "0.0.0.0:2222".
	ListenAddress string `yaml:"listen_address"`
	// Banner is the software-version token advertised in this server's
	// SSH-2.0- banner line (no "SSH-2.0-" prefix, no CRLF).
	Banner string `yaml:"banner"`
	// HostKeyPath is the PEM file internal/hostkey.DecodePEM reads at
	// startup.
	HostKeyPath string `yaml:"host_key_path"`
	// UserStoreBackend selects json or pam.
	UserStoreBackend UserStoreBackend `yaml:"user_store_backend"`
	// UserDBPath is the JSON file internal/userstore.JSONStore persists
	// to; ignored when UserStoreBackend is pam.
	UserDBPath string `yaml:"user_db_path"`
	// PAMServiceName is the PAM service internal/userstore.PAMStore
	// authenticates against; ignored when UserStoreBackend is json.
	PAMServiceName string `yaml:"pam_service_name"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		ListenAddress:    "0.0.0.0:2222",
		Banner:           "awa_ssh_0.1",
		HostKeyPath:      "host_key.pem",
		UserStoreBackend: BackendJSON,
		UserDBPath:       "users.json",
		PAMServiceName:   "sshd",
	}
}

// Load reads a YAML config file at path (if it exists) over Default(),
// then applies AWA_SSH_*-prefixed environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// No config file yet; Default() alone governs.
		default:
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AWA_SSH_LISTEN_ADDRESS"); v != "" {
		cfg.ListenAddress = v
	}
	if v := os.Getenv("AWA_SSH_BANNER"); v != "" {
		cfg.Banner = v
	}
	if v := os.Getenv("AWA_SSH_HOST_KEY_PATH"); v != "" {
		cfg.HostKeyPath = v
	}
	if v := os.Getenv("AWA_SSH_USER_STORE_BACKEND"); v != "" {
		cfg.UserStoreBackend = UserStoreBackend(v)
	}
	if v := os.Getenv("AWA_SSH_USER_DB_PATH"); v != "" {
		cfg.UserDBPath = v
	}
	if v := os.Getenv("AWA_SSH_PAM_SERVICE_NAME"); v != "" {
		cfg.PAMServiceName = v
	}
}

// Dir returns the configuration directory for awa-ssh, creating it if
// needed: $XDG_CONFIG_HOME/awa-ssh when XDG_CONFIG_HOME is set, else
// %APPDATA%\awa-ssh when APPDATA is set, else ~/.config/awa-ssh. The
// operating system itself is not consulted.
func Dir() (string, error) {
	var dir string
	switch {
	case os.Getenv("XDG_CONFIG_HOME") != "":
		dir = filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "awa-ssh")
	case os.Getenv("APPDATA") != "":
		dir = filepath.Join(os.Getenv("APPDATA"), "awa-ssh")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "awa-ssh")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultPath returns the default config file location inside Dir().
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
