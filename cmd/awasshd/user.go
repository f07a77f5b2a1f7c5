package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kmerz/awa-ssh/internal/userstore"
)

// userCmd wraps internal/userstore.JSONStore's admin methods in add/rm/
// ls/passwd/addkey/rmkey subcommands, grounded on the teacher's usermgmt
// CLI switch in main.go.
func userCmd(configPath *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "user",
		Short: "Manage the JSON user database",
	}
	root.AddCommand(userAddCmd(configPath))
	root.AddCommand(userRemoveCmd(configPath))
	root.AddCommand(userListCmd(configPath))
	root.AddCommand(userPasswdCmd(configPath))
	root.AddCommand(userEnableCmd(configPath, true))
	root.AddCommand(userEnableCmd(configPath, false))
	root.AddCommand(userAddKeyCmd(configPath))
	root.AddCommand(userRemoveKeyCmd(configPath))
	return root
}

func openUserStore(configPath string) (*userstore.JSONStore, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return userstore.NewJSONStore(cfg.UserDBPath)
}

func userAddCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <username> <password>",
		Short: "Create a new account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openUserStore(*configPath)
			if err != nil {
				return err
			}
			return db.AddUser(args[0], args[1])
		},
	}
}

func userRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <username>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openUserStore(*configPath)
			if err != nil {
				return err
			}
			return db.RemoveUser(args[0])
		},
	}
}

func userListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List account names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openUserStore(*configPath)
			if err != nil {
				return err
			}
			for _, name := range db.ListUsernames() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func userPasswdCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <username> <new-password>",
		Short: "Change an account's password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openUserStore(*configPath)
			if err != nil {
				return err
			}
			return db.SetPassword(args[0], args[1])
		},
	}
}

func userEnableCmd(configPath *string, enable bool) *cobra.Command {
	use, short := "enable <username>", "Re-activate a disabled account"
	if !enable {
		use, short = "disable <username>", "Deactivate an account without deleting it"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openUserStore(*configPath)
			if err != nil {
				return err
			}
			if enable {
				return db.Enable(args[0])
			}
			return db.Disable(args[0])
		},
	}
}

func userAddKeyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "addkey <username> <wire-blob-file>",
		Short: "Register a wire-format public key blob for an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			db, err := openUserStore(*configPath)
			if err != nil {
				return err
			}
			return db.AddPublicKey(args[0], blob)
		},
	}
}

func userRemoveKeyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rmkey <username> <wire-blob-file>",
		Short: "Unregister a wire-format public key blob from an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			db, err := openUserStore(*configPath)
			if err != nil {
				return err
			}
			return db.RemovePublicKey(args[0], blob)
		},
	}
}
