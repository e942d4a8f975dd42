package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/fuszti/measure/tracker/config"
	"github.com/spf13/cobra"
)

var secretLength int

var generateSecretCmd = &cobra.Command{
	Use:   "generate-secret",
	Short: "Print a random hex secret suitable for SECRET_KEY",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := generateSecret(secretLength)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password PASSWORD",
	Short: "Print a bcrypt hash for a credentials file entry",
	Long: `Print a bcrypt hash of PASSWORD for use as password_hash in the file
named by AUTH_USERS_FILE:

  users:
    alice:
      password_hash: <output>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := config.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

// generateSecret returns length random bytes, hex encoded.
func generateSecret(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error generating secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func init() {
	generateSecretCmd.Flags().IntVar(&secretLength, "length", 32, "number of random bytes")
	rootCmd.AddCommand(generateSecretCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}
