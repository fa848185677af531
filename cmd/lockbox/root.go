package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/internal/config"
	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/recovery"
	"github.com/forest6511/lockbox/pkg/vault"
)

var (
	flagVault string
	cfg       *config.Config
	store     *vault.Store
	auditLog  *audit.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lockbox",
	Short: "lockbox is a single-file encrypted password vault",
	Long: `A local password vault stored as one encrypted flat file, with an
asymmetric recovery envelope for a forgotten master passphrase and an
optional loopback web interface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE wires the configuration and the vault store before
	// every subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.DefaultDir())
		if err != nil {
			return err
		}

		path := flagVault
		if path == "" {
			path = cfg.VaultPath
		}
		path = vault.ResolvePath(path)

		store = vault.New(path, crypto.NewAESEngine(), recovery.NewX25519Engine())
		auditLog = audit.NewLogger(filepath.Join(config.DefaultDir(), "audit.db"))
		store.SetAudit(auditLog, audit.SourceCLI)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if auditLog != nil {
			auditLog.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagVault, "vault", "", "Vault file path (overrides configuration)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(changeMasterCmd)
	rootCmd.AddCommand(notesAddCmd)
	rootCmd.AddCommand(notesListCmd)
	rootCmd.AddCommand(notesSearchCmd)
	rootCmd.AddCommand(notesViewCmd)
	rootCmd.AddCommand(notesDeleteCmd)
	rootCmd.AddCommand(forgotCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(auditCmd)
}

// requireVault fails early with a friendly message when no vault exists.
func requireVault() error {
	if !store.Exists() {
		return fmt.Errorf("no vault found at %s (run 'lockbox init' first)", store.Path())
	}
	return nil
}
