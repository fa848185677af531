package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/security"
	"github.com/forest6511/lockbox/pkg/vault"
)

var (
	addUsername string
	addNote     string
	addForce    bool

	deleteForce bool
)

func init() {
	addCmd.Flags().StringVarP(&addUsername, "username", "u", "", "Username for the entry")
	addCmd.Flags().StringVar(&addNote, "note", "", "Free-form note for the entry")
	addCmd.Flags().BoolVarP(&addForce, "force", "f", false, "Allow a duplicate service/username pair")

	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

// initCmd creates a new vault and its recovery artifacts.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault with a recovery key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if store.Exists() {
			return fmt.Errorf("a vault already exists at %s", store.Path())
		}

		fmt.Printf("Creating vault at %s\n", store.Path())

		// 1. Prompt for the master passphrase, twice.
		pass1, err := promptPassphrase("Enter master passphrase")
		if err != nil {
			return err
		}
		defer pass1.Wipe()
		pass2, err := promptPassphrase("Confirm master passphrase")
		if err != nil {
			return err
		}
		defer pass2.Wipe()

		if string(pass1.Bytes()) != string(pass2.Bytes()) {
			return fmt.Errorf("passphrases do not match")
		}
		if pass1.Empty() {
			return fmt.Errorf("passphrase must not be empty")
		}

		// 2. Show strength; weak passphrases are advisory, not blocking.
		printStrength(security.Estimate(string(pass1.Bytes())))

		// 3. Create the vault and recovery artifacts.
		keyCreated, err := store.Init(pass1)
		if err != nil {
			return err
		}

		color.Green("Vault created at %s", store.Path())
		if keyCreated {
			fmt.Printf("Recovery key written to %s\n", store.KeyPath())
			color.Yellow("Back up the recovery key somewhere safe. It is the only way to recover a forgotten passphrase, and anyone holding it can recover yours.")
		} else {
			color.Yellow("Reused existing recovery key at %s", store.KeyPath())
		}
		return nil
	},
}

// addCmd stores a new password record.
var addCmd = &cobra.Command{
	Use:   "add [service]",
	Short: "Add a password record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		service := args[0]

		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		secretPass, err := promptPassphrase("Password (leave empty to generate)")
		if err != nil {
			return err
		}
		secret := string(secretPass.Bytes())
		secretPass.Wipe()

		id, stored, generated, err := store.AddPassword(pass, service, addUsername, secret, addNote, addForce)
		if err != nil {
			if errors.Is(err, vault.ErrDuplicateEntry) {
				return fmt.Errorf("%v (use --force to add anyway)", err)
			}
			return err
		}

		fmt.Printf("Added record %d for %s\n", id, service)
		if generated {
			// The generated secret exists nowhere else yet; disclose it once.
			fmt.Printf("Generated password: %s\n", stored)
		}
		return nil
	},
}

// listCmd prints all records without secrets.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all password records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		records, err := store.ListPasswords(pass)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("The vault is empty")
			return nil
		}
		printSummaries(records)
		return nil
	},
}

// getCmd shows one record by ID, or matching records by pattern.
var getCmd = &cobra.Command{
	Use:   "get [id|pattern]",
	Short: "Show a record by ID, or search by service/username",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		if id, convErr := strconv.Atoi(args[0]); convErr == nil {
			rec, err := store.GetPassword(pass, id)
			if err != nil {
				return err
			}
			fmt.Printf("ID:       %d\n", rec.ID)
			fmt.Printf("Service:  %s\n", rec.Service)
			fmt.Printf("Username: %s\n", rec.Username)
			fmt.Printf("Password: %s\n", rec.Secret)
			if rec.Note != "" {
				fmt.Printf("Note:     %s\n", rec.Note)
			}
			fmt.Printf("Created:  %s\n", rec.CreatedAt.Format(time.RFC3339))
			return nil
		}

		matches, err := store.SearchPasswords(pass, args[0])
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No matching records")
			return nil
		}
		printSummaries(matches)
		return nil
	},
}

// searchCmd lists records whose service or username matches a pattern.
var searchCmd = &cobra.Command{
	Use:   "search [pattern]",
	Short: "Search records by service or username",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		matches, err := store.SearchPasswords(pass, args[0])
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No matching records")
			return nil
		}
		printSummaries(matches)
		return nil
	},
}

// editCmd opens the whole decrypted vault in $EDITOR.
var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the decrypted vault in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		err = store.EditRaw(pass, func(scratchPath string) error {
			ed := exec.Command(editor, scratchPath)
			ed.Stdin = os.Stdin
			ed.Stdout = os.Stdout
			ed.Stderr = os.Stderr
			if err := ed.Run(); err != nil {
				return fmt.Errorf("editor failed: %w", err)
			}
			return nil
		})
		if errors.Is(err, vault.ErrVaultBusy) {
			return fmt.Errorf("the vault is in use by another operation; try again")
		}
		if err != nil {
			return err
		}
		color.Green("Vault updated")
		return nil
	},
}

// deleteCmd removes one record.
var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a password record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid record ID %q", args[0])
		}

		if !deleteForce && !confirm(fmt.Sprintf("Delete record %d?", id)) {
			fmt.Println("Aborted")
			return nil
		}

		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		if err := store.DeletePassword(pass, id); err != nil {
			return err
		}
		fmt.Printf("Deleted record %d\n", id)
		return nil
	},
}

func printSummaries(records []vault.Summary) {
	fmt.Printf("%-5s %-24s %-24s %s\n", "ID", "SERVICE", "USERNAME", "CREATED")
	for _, r := range records {
		fmt.Printf("%-5d %-24s %-24s %s\n", r.ID, r.Service, r.Username, r.CreatedAt.Format("2006-01-02"))
	}
}

func printStrength(s security.Strength) {
	switch s {
	case security.StrengthWeak:
		color.Red("Passphrase strength: %s", s)
	case security.StrengthFair:
		color.Yellow("Passphrase strength: %s", s)
	default:
		color.Green("Passphrase strength: %s", s)
	}
}
