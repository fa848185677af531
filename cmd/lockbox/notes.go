package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var notesDeleteForce bool

func init() {
	notesDeleteCmd.Flags().BoolVarP(&notesDeleteForce, "force", "f", false, "Skip confirmation prompt")
}

// notesAddCmd stores a secure note read from stdin.
var notesAddCmd = &cobra.Command{
	Use:   "notes-add [title]",
	Short: "Add a secure note (body read from stdin)",
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

		fmt.Fprintln(os.Stderr, "Enter note body (Ctrl+D to finish):")
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read note body: %w", err)
		}

		id, err := store.AddNote(pass, args[0], body)
		if err != nil {
			return err
		}
		fmt.Printf("Added note %d\n", id)
		return nil
	},
}

// notesListCmd prints note titles without bodies.
var notesListCmd = &cobra.Command{
	Use:   "notes-list",
	Short: "List secure notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		notes, err := store.ListNotes(pass)
		if err != nil {
			return err
		}
		if len(notes) == 0 {
			fmt.Println("No notes stored")
			return nil
		}
		fmt.Printf("%-5s %-40s %s\n", "ID", "TITLE", "CREATED")
		for _, n := range notes {
			fmt.Printf("%-5d %-40s %s\n", n.ID, n.Title, n.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

// notesSearchCmd matches note titles only; bodies stay sealed.
var notesSearchCmd = &cobra.Command{
	Use:   "notes-search [pattern]",
	Short: "Search secure notes by title",
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

		notes, err := store.SearchNotes(pass, args[0])
		if err != nil {
			return err
		}
		if len(notes) == 0 {
			fmt.Println("No matching notes")
			return nil
		}
		fmt.Printf("%-5s %-40s %s\n", "ID", "TITLE", "CREATED")
		for _, n := range notes {
			fmt.Printf("%-5d %-40s %s\n", n.ID, n.Title, n.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

// notesViewCmd prints one note body to stdout.
var notesViewCmd = &cobra.Command{
	Use:   "notes-view [id]",
	Short: "Show a secure note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid note ID %q", args[0])
		}

		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		n, err := store.GetNote(pass, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s (created %s)\n", n.Title, n.CreatedAt.Format(time.RFC3339))
		os.Stdout.Write(n.Body)
		if len(n.Body) > 0 && n.Body[len(n.Body)-1] != '\n' {
			fmt.Println()
		}
		return nil
	},
}

// notesDeleteCmd removes one note.
var notesDeleteCmd = &cobra.Command{
	Use:   "notes-delete [id]",
	Short: "Delete a secure note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid note ID %q", args[0])
		}

		if !notesDeleteForce && !confirm(fmt.Sprintf("Delete note %d?", id)) {
			fmt.Println("Aborted")
			return nil
		}

		pass, err := promptMasterPassphrase()
		if err != nil {
			return err
		}
		defer pass.Wipe()

		if err := store.DeleteNote(pass, id); err != nil {
			return err
		}
		fmt.Printf("Deleted note %d\n", id)
		return nil
	},
}
