package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "measurectl",
	Short: "Administration tool for the measurement tracker",
	Long: `measurectl performs maintenance tasks for a measurement tracker deployment.

USAGE:

  $ measurectl import-json --data-dir ./data --database-url sqlite://data/measure.db
  $ measurectl generate-secret               # value for SECRET_KEY
  $ measurectl hash-password s3cret          # entry for AUTH_USERS_FILE`,
	SilenceUsage: true,
}
