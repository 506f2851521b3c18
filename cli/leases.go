package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/fault"
)

type leasesData struct {
	Leases []statusPayload `json:"leases"`
	Count  int             `json:"count"`
	DryRun bool            `json:"dry_run,omitempty"`
}

var leasesCmd = &cobra.Command{
	Use:   "leases",
	Short: "List the project's leases",

	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		out := cmd.OutOrStdout()

		if dryRun() {
			return emitFlat(out, leasesData{Leases: []statusPayload{}, DryRun: true}, nil, started)
		}

		session, err := newSession()
		if err != nil {
			return emitFlat(out, nil, err, started)
		}

		all, err := blazar.ListLeases(session.Reservation).Extract()
		if err != nil {
			return emitFlat(out, nil, fault.FromBackend(err), started)
		}

		data := leasesData{Leases: make([]statusPayload, 0, len(all)), Count: len(all)}
		for i := range all {
			data.Leases = append(data.Leases, leasePayload(&all[i]))
		}
		return emitFlat(out, data, nil, started)
	},
}
