package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kmerz/awa-ssh/internal/config"
	"github.com/kmerz/awa-ssh/internal/hostkey"
	"github.com/kmerz/awa-ssh/internal/sshd"
	"github.com/kmerz/awa-ssh/internal/userauth"
	"github.com/kmerz/awa-ssh/internal/userstore"
)

// serveCmd starts the TCP accept loop, grounded on the teacher's
// StartServer (internal/tunnel/main.go): signal.Notify for graceful
// shutdown, server run in a goroutine, block until the signal arrives.
func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Listen for SSH connections and drive the transport/userauth state machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			hk, err := loadHostKey(cfg.HostKeyPath)
			if err != nil {
				return fmt.Errorf("loading host key: %w", err)
			}

			store, err := buildStore(cfg)
			if err != nil {
				return fmt.Errorf("building user store: %w", err)
			}

			srv := &sshd.Server{
				ListenAddress: cfg.ListenAddress,
				Banner:        cfg.Banner,
				HostKey:       hk,
				Store:         store,
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case <-sig:
				log.Println("awasshd: shutdown signal received")
				srv.Shutdown()
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

func loadHostKey(path string) (hostkey.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return hostkey.Key{}, fmt.Errorf("reading %s: %w (run 'awasshd keygen' first)", path, err)
	}
	return hostkey.DecodePEM(data)
}

func buildStore(cfg config.Config) (userauth.Store, error) {
	switch cfg.UserStoreBackend {
	case config.BackendPAM:
		return userstore.PAMStore{ServiceName: cfg.PAMServiceName}, nil
	case config.BackendJSON, "":
		return userstore.NewJSONStore(cfg.UserDBPath)
	default:
		return nil, fmt.Errorf("unknown user_store_backend %q", cfg.UserStoreBackend)
	}
}
