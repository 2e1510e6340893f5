// Package app provides the entry point for the aopkg registry server.
package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aopkg/aopkg-server/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "aopkg-server",
	DisableAutoGenTag: true,
	Short:             "aopkg package registry server",
	Long: `aopkg-server hosts a package registry for chat-bot modules: it accepts
zip uploads, validates and versions them, and re-ingests GitHub releases
announced through webhooks.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// NewRootCmd creates the root command for the registry server.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}

		if format == "json" {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format version info: %w", err)
			}
			fmt.Println(string(output))
			return nil
		}

		fmt.Printf("aopkg-server %s (commit %s, built %s, %s, %s)\n",
			info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}
