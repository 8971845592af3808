package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/secpoll/internal/config"
)

var settingsFile string

var rootCmd = &cobra.Command{
	Use:   "secpoll",
	Short: "Multi-tenant security event collector",
	Long: `secpoll polls the security events API for every configured tenant,
normalizes each event and appends it to a per-tenant log for SIEM ingestion.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default: ./secpoll.yaml or /etc/secpoll/secpoll.yaml)")
	rootCmd.PersistentFlags().String("tenants", "", "tenant file (overrides tenants_file and COLLECTOR_CONFIG)")

	rootCmd.AddCommand(runCmd, validateCmd, stateCmd)
}

// loadSettings reads the settings and applies command-line overrides.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	s, err := config.LoadSettings(settingsFile)
	if err != nil {
		return nil, err
	}
	if tenants, _ := cmd.Flags().GetString("tenants"); tenants != "" {
		s.TenantsFile = tenants
	}
	return s, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
