package main

import (
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/envagent/envboot/cli/flags"
	"github.com/envagent/envboot/cli/log"
	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/poll"
)

type statusData struct {
	statusPayload
	Wait *waitData `json:"wait,omitempty"`
}

type waitData struct {
	PollCount int   `json:"poll_count"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the current state of a lease",

	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		out := cmd.OutOrStdout()

		run := func() (statusData, error) {
			leaseID := lo.Must(cmd.Flags().GetString("reservation-id"))
			wait := lo.Must(cmd.Flags().GetDuration("wait"))

			if leaseID == "" {
				return statusData{}, fault.New(fault.Validation, "reservation id is required")
			}

			if dryRun() {
				return statusData{statusPayload: statusPayload{
					LeaseID: leaseID,
					Status:  string(simLeaseStatus(leaseID, time.Now())),
					DryRun:  true,
				}}, nil
			}

			session, err := newSession()
			if err != nil {
				return statusData{}, err
			}
			backend := leaseBackend(session)

			current, err := backend.GetLease(leaseID)
			if err != nil {
				return statusData{}, fault.FromBackend(err)
			}
			if wait <= 0 || current.Status.Terminal() {
				return statusData{statusPayload: leasePayload(current)}, nil
			}

			stats, err := poll.Run(cmd.Context(), poll.RealClock(), wait, flags.StatusPollInterval, func() (bool, error) {
				latest, err := backend.GetLease(leaseID)
				if err != nil {
					log.Warn("Lease status poll failed, retrying", "lease", leaseID, "error", err)
					return false, nil
				}
				current = latest
				return latest.Status.Terminal(), nil
			})
			data := statusData{
				statusPayload: leasePayload(current),
				Wait:          &waitData{PollCount: stats.Polls, ElapsedMS: stats.Elapsed.Milliseconds()},
			}
			if err != nil && !fault.Is(err, fault.Timeout) {
				return data, err
			}
			// A timeout here is informational: the lease is just not
			// terminal yet.
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
	statusCmd.Flags().String("reservation-id", "", "lease id to inspect")
	statusCmd.Flags().Duration("wait", 0, "keep polling until the lease is terminal or this budget elapses")
	lo.Must0(statusCmd.MarkFlagRequired("reservation-id"))
}
