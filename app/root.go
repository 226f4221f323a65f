// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backoffice",
	Short: "backoffice is a web-based administration tool for a content site",
	Long: `backoffice is a web-based administration tool for a content site
that provides an easy-to-use interface for managing users, roles,
permissions, and site settings.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
