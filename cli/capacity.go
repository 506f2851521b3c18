package main

import (
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/envagent/envboot/cli/flags"
	"github.com/envagent/envboot/discovery"
	"github.com/envagent/envboot/internal/timeparse"
)

type capacityData struct {
	Zone            string   `json:"zone"`
	NodeType        string   `json:"node_type,omitempty"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	DurationMinutes int      `json:"duration_minutes"`
	AvailableNodes  int      `json:"available_nodes"`
	TotalNodes      int      `json:"total_nodes,omitempty"`
	FreeHosts       []string `json:"free_hosts,omitempty"`
	DryRun          bool     `json:"dry_run,omitempty"`
}

var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Check how many nodes are free over a time window",

	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		out := cmd.OutOrStdout()

		run := func() (capacityData, error) {
			startFlag := lo.Must(cmd.Flags().GetString("start"))
			duration := lo.Must(cmd.Flags().GetInt("duration"))
			nodeType := lo.Must(cmd.Flags().GetString("node-type"))
			zone := viper.GetString(flags.Zone)

			if err := discovery.ValidateDuration(duration); err != nil {
				return capacityData{}, err
			}
			start, err := timeparse.Parse(startFlag)
			if err != nil {
				return capacityData{}, err
			}
			end := start.Add(time.Duration(duration) * time.Minute)

			data := capacityData{
				Zone:            zone,
				NodeType:        nodeType,
				Start:           start.Format(timeparse.ISO),
				End:             end.Format(timeparse.ISO),
				DurationMinutes: duration,
			}

			if dryRun() {
				data.DryRun = true
				data.AvailableNodes = simNodeCount
				return data, nil
			}

			session, err := newSession()
			if err != nil {
				return capacityData{}, err
			}
			report, err := discoveryService(session).Capacity(cmd.Context(), discovery.CapacityRequest{
				Zone:     zone,
				NodeType: nodeType,
				Start:    start,
				Duration: time.Duration(duration) * time.Minute,
			})
			if err != nil {
				return capacityData{}, err
			}

			data.AvailableNodes = report.AvailableNodes
			data.TotalNodes = report.TotalNodes
			data.FreeHosts = report.FreeHosts
			return data, nil
		}

		data, err := run()
		if err != nil {
			return emitFlat(out, nil, err, started)
		}
		return emitFlat(out, data, nil, started)
	},
}

func init() {
	capacityCmd.Flags().String("start", "", "window start (e.g. '2025-01-01 10:00')")
	capacityCmd.Flags().Int("duration", 60, "window length in minutes")
	capacityCmd.Flags().String("node-type", "", "restrict the check to one node type")
	lo.Must0(capacityCmd.MarkFlagRequired("start"))
}
