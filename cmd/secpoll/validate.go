package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/secpoll/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the settings and tenant file without polling",
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.LoadFile(settings.TenantsFile, settings.Defaults())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s: %d tenant(s) OK\n", settings.TenantsFile, len(cfg.Clients))
		for _, t := range cfg.Clients {
			fmt.Fprintf(w, "  %-20s every %-8s start=%-10s rate=%d/min  -> %s\n",
				t.Name, t.Interval.Std(), t.StartMode, t.RateLimitPerMinute, t.OutputLog)
		}
		return nil
	},
}
