package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted watermarks",
}

var stateShowCmd = &cobra.Command{
	Use:   "show <tenant>...",
	Short: "Print the persisted watermark of each tenant as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(settings.State)
		if err != nil {
			return err
		}
		defer store.Close()

		out := make(map[string]any, len(args))
		for _, name := range args {
			wm, err := store.Load(cmd.Context(), name)
			if err != nil {
				return err
			}
			if wm.IsZero() {
				out[name] = nil
				continue
			}
			out[name] = wm
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
}
