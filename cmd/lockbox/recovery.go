package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/security"
)

// changeMasterCmd re-encrypts the vault under a new passphrase and
// reseals the recovery capsule.
var changeMasterCmd = &cobra.Command{
	Use:   "change-master",
	Short: "Change the master passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}

		oldPass, err := promptPassphrase("Enter current master passphrase")
		if err != nil {
			return err
		}
		defer oldPass.Wipe()

		newPass1, err := promptPassphrase("Enter new master passphrase")
		if err != nil {
			return err
		}
		defer newPass1.Wipe()
		newPass2, err := promptPassphrase("Confirm new master passphrase")
		if err != nil {
			return err
		}
		defer newPass2.Wipe()

		if string(newPass1.Bytes()) != string(newPass2.Bytes()) {
			return fmt.Errorf("passphrases do not match")
		}
		printStrength(security.Estimate(string(newPass1.Bytes())))

		resealed, err := store.ChangePassphrase(oldPass, newPass1)
		if err != nil {
			return err
		}

		color.Green("Master passphrase changed")
		if !resealed {
			color.Yellow("The vault carries no recovery key, so no recovery capsule was resealed. A forgotten passphrase cannot be recovered.")
		}
		return nil
	},
}

// forgotCmd recovers the master passphrase from the capsule and the
// private key artifact.
var forgotCmd = &cobra.Command{
	Use:   "forgot",
	Short: "Recover the master passphrase with the recovery key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}

		pass, err := store.RecoverPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		color.Green("Passphrase recovered")
		fmt.Printf("Master passphrase: %s\n", string(pass.Bytes()))

		if !confirm("Set a new master passphrase now?") {
			return nil
		}

		newPass1, err := promptPassphrase("Enter new master passphrase")
		if err != nil {
			return err
		}
		defer newPass1.Wipe()
		newPass2, err := promptPassphrase("Confirm new master passphrase")
		if err != nil {
			return err
		}
		defer newPass2.Wipe()

		if string(newPass1.Bytes()) != string(newPass2.Bytes()) {
			return fmt.Errorf("passphrases do not match")
		}

		resealed, err := store.ChangePassphrase(pass, newPass1)
		if err != nil {
			return err
		}
		color.Green("Master passphrase changed")
		if !resealed {
			color.Yellow("The vault carries no recovery key; the new passphrase cannot be recovered if forgotten.")
		}
		return nil
	},
}
