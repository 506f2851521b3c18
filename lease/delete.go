package lease

import (
	"context"
	"log/slog"
	"time"

	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/poll"
)

// DefaultDeletePollInterval is the fixed interval between existence checks
// when a delete is confirmed by polling.
const DefaultDeletePollInterval = 5 * time.Second

// Outcome statuses of a deletion request.
const (
	OutcomeSimulated      = "simulated"
	OutcomeRejected       = "rejected_missing_confirm"
	OutcomeAlreadyDeleted = "already_deleted"
	OutcomeRequested      = "requested"
	OutcomeDeleted        = "deleted"
	OutcomeTimeout        = "timeout"
	OutcomeError          = "error"
)

// DeleteRequest describes a guarded lease deletion.
type DeleteRequest struct {
	LeaseID string
	// Confirm must be set for any real deletion; it guards against
	// accidental destructive calls.
	Confirm bool
	DryRun  bool
	// Wait > 0 polls until the lease is gone or the budget elapses.
	// Wait <= 0 returns right after the delete call is accepted.
	Wait         time.Duration
	PollInterval time.Duration
	// TreatNotFoundAsOK makes a 404 on the delete itself count as success.
	TreatNotFoundAsOK bool
}

// Outcome reports what the deletion actually did.
type Outcome struct {
	Status  string
	Polls   int
	LastErr error
}

// Deleter wraps the delete primitive with confirmation, dry-run and
// removal-confirmation semantics.
type Deleter struct {
	backend Backend
	log     *slog.Logger
	clock   poll.Clock
}

// NewDeleter builds a Deleter. A nil clock means real time.
func NewDeleter(backend Backend, log *slog.Logger, clock poll.Clock) *Deleter {
	if clock == nil {
		clock = poll.RealClock()
	}
	return &Deleter{backend: backend, log: log, clock: clock}
}

// Execute performs the deletion per the request. The returned error, when
// non-nil, carries the fault kind driving the process exit code.
func (d *Deleter) Execute(ctx context.Context, req DeleteRequest) (Outcome, error) {
	if req.LeaseID == "" {
		return Outcome{Status: OutcomeError}, fault.New(fault.Validation, "lease id is required")
	}

	if req.DryRun {
		return Outcome{Status: OutcomeSimulated}, nil
	}

	if !req.Confirm {
		return Outcome{Status: OutcomeRejected},
			fault.New(fault.Validation, "refusing to delete lease %s without confirmation", req.LeaseID)
	}

	if err := d.backend.DeleteLease(req.LeaseID); err != nil {
		if req.TreatNotFoundAsOK && fault.IsNotFound(err) {
			d.log.Info("Lease already deleted", "lease", req.LeaseID)
			return Outcome{Status: OutcomeAlreadyDeleted}, nil
		}
		return Outcome{Status: OutcomeError, LastErr: err}, fault.FromBackend(err)
	}

	if req.Wait <= 0 {
		return Outcome{Status: OutcomeRequested}, nil
	}

	interval := req.PollInterval
	if interval <= 0 {
		interval = DefaultDeletePollInterval
	}

	var lastErr error
	stats, err := poll.Run(ctx, d.clock, req.Wait, interval, func() (bool, error) {
		_, err := d.backend.GetLease(req.LeaseID)
		switch {
		case err == nil:
			return false, nil
		case fault.IsNotFound(err):
			return true, nil
		default:
			// Transient backend trouble: keep polling until the budget runs out.
			d.log.Warn("Lease existence check failed, retrying", "lease", req.LeaseID, "error", err)
			lastErr = err
			return false, nil
		}
	})
	if err != nil {
		if fault.Is(err, fault.Timeout) {
			return Outcome{Status: OutcomeTimeout, Polls: stats.Polls, LastErr: lastErr},
				fault.Wrap(fault.Timeout, lastErr, "lease %s still present after %s", req.LeaseID, req.Wait)
		}
		return Outcome{Status: OutcomeError, Polls: stats.Polls, LastErr: lastErr}, err
	}

	d.log.Info("Lease deletion confirmed", "lease", req.LeaseID, "polls", stats.Polls)
	return Outcome{Status: OutcomeDeleted, Polls: stats.Polls}, nil
}
