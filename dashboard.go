package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"kvbench/visualisation"
)

func newDashboardCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Write a Grafana dashboard for the exported metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := visualisation.SaveDashboard(visualisation.CreateDashboard(), outputPath); err != nil {
				return err
			}
			log.Info().Str("path", outputPath).Msg("dashboard saved, import it into Grafana")
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "grafana/kvbench-dashboard.json", "Dashboard JSON path")
	return cmd
}
