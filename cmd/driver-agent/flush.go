package main

import (
	"encoding/json"

	driveragent "driver-agent/internal/driver-agent"

	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Retry queued location and trip updates once and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		locations, trips, err := driveragent.Flush(cmd.Context(), log, cfg)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"locations": locations,
			"trips":     trips,
		})
	},
}
