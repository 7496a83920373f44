package main

import (
	"fmt"

	"driver-agent/internal/driver-agent/core/services"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the driver id carried by the configured token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := load()
		if err != nil {
			return err
		}
		id, err := services.NewAuthService(cfg.Driver.JWTSecret).DriverIDFromToken(cfg.Driver.Token)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}
