package main

import (
	"fmt"
	"os"

	"driver-agent/internal/config"
	"driver-agent/internal/mylogger"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "driver-agent",
	Short: "Delivery driver dispatch and tracking agent",
	Long: `driver-agent keeps one driver connected to the dispatch backend: it receives
order offers, negotiates accept/decline, records trips and reports location,
queuing writes that fail while the network is down.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides $DRIVER_AGENT_CONFIG)")
	rootCmd.AddCommand(runCmd, flushCmd, tokenCmd)
}

// load reads the configuration and builds the logger every subcommand uses.
func load() (*config.Config, mylogger.Logger, error) {
	if configFile != "" {
		if err := os.Setenv("DRIVER_AGENT_CONFIG", configFile); err != nil {
			return nil, nil, fmt.Errorf("set config path: %w", err)
		}
	}
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := mylogger.New(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
