package main

import (
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/envagent/envboot/cli/flags"
	"github.com/envagent/envboot/cli/log"
	"github.com/envagent/envboot/lease"
)

type deleteData struct {
	LeaseID string `json:"reservation_id"`
	Status  string `json:"status"`
	Polls   int    `json:"polls,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a lease, optionally waiting for its removal",

	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		out := cmd.OutOrStdout()

		leaseID := lo.Must(cmd.Flags().GetString("reservation-id"))
		confirm := lo.Must(cmd.Flags().GetBool("confirm"))
		wait := lo.Must(cmd.Flags().GetDuration("wait"))
		interval := lo.Must(cmd.Flags().GetDuration("interval"))
		notFoundOK := lo.Must(cmd.Flags().GetBool("treat-not-found-as-ok"))

		req := lease.DeleteRequest{
			LeaseID:           leaseID,
			Confirm:           confirm,
			DryRun:            dryRun(),
			Wait:              wait,
			PollInterval:      interval,
			TreatNotFoundAsOK: notFoundOK,
		}

		var (
			outcome lease.Outcome
			err     error
		)
		if req.DryRun || !req.Confirm || req.LeaseID == "" {
			// These paths never reach the backend; no session needed.
			deleter := lease.NewDeleter(nil, log.Base, nil)
			outcome, err = deleter.Execute(cmd.Context(), req)
		} else {
			session, sessionErr := newSession()
			if sessionErr != nil {
				return emit(out, nil, sessionErr, started)
			}
			outcome, err = leaseDeleter(session).Execute(cmd.Context(), req)
		}

		data := deleteData{
			LeaseID: leaseID,
			Status:  outcome.Status,
			Polls:   outcome.Polls,
			DryRun:  req.DryRun,
		}
		return emit(out, data, err, started)
	},
}

func init() {
	deleteCmd.Flags().String("reservation-id", "", "lease id to delete")
	deleteCmd.Flags().Bool("confirm", false, "actually perform the deletion")
	deleteCmd.Flags().Duration("wait", 0, "wait for the lease to disappear")
	deleteCmd.Flags().Duration("interval", flags.DeletePollInterval, "poll interval while waiting")
	deleteCmd.Flags().Bool("treat-not-found-as-ok", true, "report an already-deleted lease as success")
}
