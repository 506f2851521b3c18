// Package lease drives the reservation lifecycle: create a lease with a
// resource filter, observe it until ACTIVE, extract the reservation, and tear
// it down again. Status transitions are backend-driven; the controller only
// watches them.
package lease

import (
	"context"
	"log/slog"
	"time"

	"github.com/gophercloud/gophercloud"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/poll"
)

// DefaultPollInterval is the fixed interval between lease status polls.
const DefaultPollInterval = 10 * time.Second

// Blazar rejects leases shorter than a minute or longer than 31 days.
const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 44640
)

// Backend is the slice of the reservation API the controller needs.
type Backend interface {
	CreateLease(opts blazar.CreateOpts) (*blazar.Lease, error)
	GetLease(id string) (*blazar.Lease, error)
	DeleteLease(id string) error
}

// Client implements Backend against a reservation service client.
type Client struct {
	Service *gophercloud.ServiceClient
}

func (c Client) CreateLease(opts blazar.CreateOpts) (*blazar.Lease, error) {
	return blazar.CreateLease(c.Service, opts).Extract()
}

func (c Client) GetLease(id string) (*blazar.Lease, error) {
	return blazar.GetLease(c.Service, id).Extract()
}

func (c Client) DeleteLease(id string) error {
	return blazar.DeleteLease(c.Service, id).ExtractErr()
}

// Controller owns lease creation, activation waits and reservation extraction.
type Controller struct {
	backend Backend
	log     *slog.Logger
	clock   poll.Clock
}

// NewController builds a Controller. A nil clock means real time.
func NewController(backend Backend, log *slog.Logger, clock poll.Clock) *Controller {
	if clock == nil {
		clock = poll.RealClock()
	}
	return &Controller{backend: backend, log: log, clock: clock}
}

// CreateSpec describes the lease to create. ResourceFilter is an opaque
// backend predicate such as `["=", "$node_type", "gpu_rtx_6000"]`.
type CreateSpec struct {
	Name           string
	ResourceType   string
	ResourceFilter string
	Start          time.Time
	End            time.Time
	MinCount       int
	MaxCount       int
}

func (s CreateSpec) validate(now time.Time) error {
	if s.Name == "" {
		return fault.New(fault.Validation, "lease name is required")
	}
	if s.MinCount < 1 || s.MaxCount < 1 {
		return fault.New(fault.Validation, "min and max node counts must be at least 1")
	}
	if s.MinCount > s.MaxCount {
		return fault.New(fault.Validation, "min node count %d exceeds max %d", s.MinCount, s.MaxCount)
	}
	if !s.Start.Before(s.End) {
		return fault.New(fault.Validation, "lease start must be before its end")
	}
	if minutes := s.End.Sub(s.Start).Minutes(); minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return fault.New(fault.Validation, "lease duration must be between %d and %d minutes", MinDurationMinutes, MaxDurationMinutes)
	}
	if !s.Start.After(now) {
		return fault.New(fault.Validation, "lease start must be later than current UTC time")
	}
	return nil
}

// Create validates the spec and submits the lease. No local state is retained
// beyond the returned lease.
func (c *Controller) Create(spec CreateSpec) (*blazar.Lease, error) {
	if err := spec.validate(c.clock.Now().UTC()); err != nil {
		return nil, err
	}

	resourceType := spec.ResourceType
	if resourceType == "" {
		resourceType = blazar.ResourceTypePhysicalHost
	}

	created, err := c.backend.CreateLease(blazar.CreateOpts{
		Name:  spec.Name,
		Start: spec.Start,
		End:   spec.End,
		Reservations: []blazar.ReservationOpts{{
			ResourceType:       resourceType,
			Min:                spec.MinCount,
			Max:                spec.MaxCount,
			ResourceProperties: spec.ResourceFilter,
		}},
	})
	if err != nil {
		return nil, fault.Wrap(fault.FromBackend(err).Kind, err, "lease creation rejected by backend")
	}

	c.log.Info("Lease created", "lease", created.ID, "name", spec.Name, "end", spec.End)
	return created, nil
}

// WaitForActive polls the lease at a fixed interval until it reports ACTIVE.
// ERROR is fatal and not retried; on timeout the lease is left in place for
// inspection or cleanup. Polls that themselves fail (network blips) are
// logged and retried up to the overall budget.
func (c *Controller) WaitForActive(ctx context.Context, id string, timeout, interval time.Duration) (*blazar.Lease, poll.Stats, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var last *blazar.Lease
	stats, err := poll.Run(ctx, c.clock, timeout, interval, func() (bool, error) {
		lease, err := c.backend.GetLease(id)
		if err != nil {
			c.log.Warn("Lease status poll failed, retrying", "lease", id, "error", err)
			return false, nil
		}
		last = lease

		switch lease.Status {
		case blazar.StatusActive:
			return true, nil
		case blazar.StatusError:
			return false, fault.New(fault.Lease, "lease %s entered ERROR state", id)
		default:
			c.log.Debug("Lease not active yet", "lease", id, "status", lease.Status)
			return false, nil
		}
	})
	if err != nil {
		if fault.Is(err, fault.Timeout) {
			err = fault.Wrap(fault.Timeout, err, "lease %s did not become ACTIVE in time; lease left in place", id)
		}
		return last, stats, err
	}

	c.log.Info("Lease is ACTIVE", "lease", id, "polls", stats.Polls)
	return last, stats, nil
}

// ReservationID extracts the reservation identifier from a lease. Leases with
// several reservations are not disambiguated: the first one wins.
func (c *Controller) ReservationID(l *blazar.Lease) (string, error) {
	if l == nil || len(l.Reservations) == 0 {
		return "", fault.New(fault.NotFound, "lease carries no reservations")
	}
	id := l.Reservations[0].ID
	if id == "" {
		return "", fault.New(fault.NotFound, "first reservation of lease %s has no identifier", l.ID)
	}
	return id, nil
}

// ResourceIDs returns the concrete resource ids allocated to the lease's
// physical-host reservations. Empty until the lease is ACTIVE.
func (c *Controller) ResourceIDs(l *blazar.Lease) []string {
	if l == nil {
		return nil
	}
	var ids []string
	for _, r := range l.Reservations {
		if r.ResourceType == blazar.ResourceTypePhysicalHost && r.ResourceID != "" {
			ids = append(ids, r.ResourceID)
		}
	}
	return ids
}

// Delete issues a lease delete and surfaces the raw outcome; 404 handling is
// the Deleter's concern, not this primitive's.
func (c *Controller) Delete(id string) error {
	if err := c.backend.DeleteLease(id); err != nil {
		return fault.FromBackend(err)
	}
	return nil
}
