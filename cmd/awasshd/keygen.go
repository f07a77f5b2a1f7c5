package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kmerz/awa-ssh/internal/hostkey"
)

// keygenCmd generates a new RSA host key and PEM-encodes it to disk,
// grounded on the teacher's NewRSAPrivateKey/RSAPrivateKeyPEM pair
// (internal/ssh/keys.go), routed through internal/hostkey instead.
func keygenCmd() *cobra.Command {
	var out string
	var bits int

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA host key and write it as a PEM file",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hostkey.GenerateRSA(bits)
			if err != nil {
				return fmt.Errorf("generating host key: %w", err)
			}
			pemBytes, err := key.EncodePEM()
			if err != nil {
				return fmt.Errorf("encoding host key: %w", err)
			}
			if err := os.WriteFile(out, pemBytes, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Printf("wrote %d-bit RSA host key to %s\n", bits, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "host_key.pem", "path to write the PEM-encoded host key")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size in bits")
	return cmd
}
