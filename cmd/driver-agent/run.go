package main

import (
	driveragent "driver-agent/internal/driver-agent"
	"driver-agent/internal/driver-agent/core/domain/model"

	"github.com/spf13/cobra"
)

var runOpts struct {
	simulate bool
	online   bool
	lat      float64
	lng      float64
	speed    float64
	port     int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent and serve the local UI bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.UI.Port = runOpts.port
		}
		return driveragent.Run(cmd.Context(), log, cfg, driveragent.Options{
			Simulate:   runOpts.simulate,
			Start:      model.Coord{Latitude: runOpts.lat, Longitude: runOpts.lng},
			SpeedMps:   runOpts.speed,
			AutoOnline: runOpts.online,
		})
	},
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runOpts.simulate, "simulate", false, "simulate GPS movement instead of accepting fixes on POST /position")
	f.BoolVar(&runOpts.online, "online", false, "go online right after start")
	f.Float64Var(&runOpts.lat, "start-lat", 43.238949, "simulated start latitude")
	f.Float64Var(&runOpts.lng, "start-lng", 76.889709, "simulated start longitude")
	f.Float64Var(&runOpts.speed, "speed", 10, "simulated speed in m/s")
	f.IntVar(&runOpts.port, "port", 0, "UI bridge port (overrides UI_PORT)")
}
