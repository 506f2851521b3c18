package main

import (
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/discovery"
	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/timeparse"
	"github.com/envagent/envboot/lease"
	"github.com/envagent/envboot/namegen"
	"github.com/envagent/envboot/selection"
)

var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "Create a lease for a block of nodes",

	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		out := cmd.OutOrStdout()

		run := func() (statusPayload, error) {
			startFlag := lo.Must(cmd.Flags().GetString("start"))
			duration := lo.Must(cmd.Flags().GetInt("duration"))
			nodes := lo.Must(cmd.Flags().GetInt("nodes"))
			name := lo.Must(cmd.Flags().GetString("name"))
			nodeType := lo.Must(cmd.Flags().GetString("node-type"))
			resourceType := lo.Must(cmd.Flags().GetString("resource-type"))

			if err := discovery.ValidateDuration(duration); err != nil {
				return statusPayload{}, err
			}
			if nodes < 1 {
				return statusPayload{}, fault.New(fault.Validation, "node count must be at least 1")
			}
			start, err := timeparse.Parse(startFlag)
			if err != nil {
				return statusPayload{}, err
			}
			end := start.Add(time.Duration(duration) * time.Minute)

			if name == "" {
				name = namegen.Prefixed("envboot")
			}

			if dryRun() {
				now := time.Now()
				return statusPayload{
					LeaseID: simLeaseID(now),
					Name:    name,
					Status:  string(blazar.StatusPending),
					Start:   start.Format(timeparse.ISO),
					End:     end.Format(timeparse.ISO),
					DryRun:  true,
				}, nil
			}

			session, err := newSession()
			if err != nil {
				return statusPayload{}, err
			}

			var filter string
			if nodeType != "" {
				filter = selection.NodeTypeFilter(nodeType)
			}
			created, err := leaseController(session).Create(lease.CreateSpec{
				Name:           name,
				ResourceType:   resourceType,
				ResourceFilter: filter,
				Start:          start,
				End:            end,
				MinCount:       nodes,
				MaxCount:       nodes,
			})
			if err != nil {
				return statusPayload{}, err
			}
			return leasePayload(created), nil
		}

		data, err := run()
		if err != nil {
			return emitFlat(out, nil, err, started)
		}
		return emitFlat(out, data, nil, started)
	},
}

func init() {
	reserveCmd.Flags().String("start", "", "lease start (e.g. '2025-01-01 10:00')")
	reserveCmd.Flags().Int("duration", 60, "lease length in minutes")
	reserveCmd.Flags().Int("nodes", 1, "number of nodes to reserve")
	reserveCmd.Flags().String("name", "", "lease name (generated when empty)")
	reserveCmd.Flags().String("node-type", "", "node type to reserve")
	reserveCmd.Flags().String("resource-type", blazar.ResourceTypePhysicalHost, "reservation resource type")
	lo.Must0(reserveCmd.MarkFlagRequired("start"))
}
