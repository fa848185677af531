package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/vault"
)

// doctorCmd runs passphrase-free diagnostics over the vault and its
// sidecar artifacts.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the health of the vault and recovery artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := store.Doctor()

		for _, c := range report.Checks {
			switch c.Status {
			case vault.StatusOK:
				fmt.Printf("%s %-24s %s\n", color.GreenString("✓"), c.Name, c.Detail)
			case vault.StatusWarn:
				fmt.Printf("%s %-24s %s\n", color.YellowString("!"), c.Name, c.Detail)
			default:
				fmt.Printf("%s %-24s %s\n", color.RedString("✗"), c.Name, c.Detail)
			}
		}

		if !report.Healthy() {
			color.Red("One or more checks failed")
			return errSilent
		}
		return nil
	},
}
