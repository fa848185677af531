package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/security"
)

const (
	minGenerateLength = 8
	maxGenerateLength = 256
	maxGenerateCount  = 100
)

var (
	generateLength int
	generateCount  int
)

func init() {
	generateCmd.Flags().IntVarP(&generateLength, "length", "l", security.GeneratedSecretLength, "Password length (8-256)")
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "Number of passwords to generate (1-100)")
}

// generateCmd prints random passwords without touching the vault.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secure random passwords",
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateLength < minGenerateLength || generateLength > maxGenerateLength {
			return fmt.Errorf("length must be between %d and %d", minGenerateLength, maxGenerateLength)
		}
		if generateCount < 1 || generateCount > maxGenerateCount {
			return fmt.Errorf("count must be between 1 and %d", maxGenerateCount)
		}

		for i := 0; i < generateCount; i++ {
			secret, err := security.GenerateSecret(generateLength)
			if err != nil {
				return fmt.Errorf("failed to generate password: %w", err)
			}
			fmt.Println(secret)
		}
		return nil
	},
}
