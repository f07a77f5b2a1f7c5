// Command awasshd runs the SSH server and manages its user database,
// replacing the teacher's os.Args switch in main.go with cobra
// subcommands, grounded on ToeiRei-Keymaster's cmd/keymaster layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "awasshd",
		Short: "A from-scratch SSH transport and userauth server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to the platform config directory)")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(keygenCmd())
	root.AddCommand(userCmd(&configPath))
	return root
}
