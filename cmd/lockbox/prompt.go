package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/forest6511/lockbox/pkg/crypto"
)

// promptPassphrase reads a passphrase without echo on a terminal, falling
// back to a plain line read for piped input.
func promptPassphrase(label string) (*crypto.Passphrase, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)

	if term.IsTerminal(int(syscall.Stdin)) {
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		return crypto.NewPassphrase(raw), nil
	}

	line, err := readLine()
	if err != nil {
		return nil, err
	}
	return crypto.NewPassphraseString(line), nil
}

// promptMasterPassphrase is the standard unlock prompt.
func promptMasterPassphrase() (*crypto.Passphrase, error) {
	return promptPassphrase("Enter master passphrase")
}

// readLine reads a single line from stdin, trimming the trailing newline.
func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// promptLine prints a label and reads one line of visible input.
func promptLine(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	return readLine()
}

// confirm asks a yes/no question and returns true only on an explicit yes.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, err := readLine()
	if err != nil {
		return false
	}
	return line == "y" || line == "Y"
}
