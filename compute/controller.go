// Package compute boots servers bound to a reservation and observes them
// until they reach a terminal state. Bare-metal nodes go through a distinct
// activation protocol that is mapped onto the same status vocabulary.
package compute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/poll"
)

// DefaultPollInterval is the fixed interval between server status polls.
const DefaultPollInterval = 30 * time.Second

// Status is the server state vocabulary shared by the virtual and bare-metal
// paths.
type Status string

const (
	StatusBuild    Status = "BUILD"
	StatusActive   Status = "ACTIVE"
	StatusError    Status = "ERROR"
	StatusDeleting Status = "DELETING"
	StatusUnknown  Status = "UNKNOWN"
)

// Terminal reports whether the backend will not move the server on its own.
func (s Status) Terminal() bool {
	return s == StatusActive || s == StatusError
}

// Server is the controller's view of a booted instance or node.
type Server struct {
	ID         string
	Name       string
	Status     Status
	FixedIP    string
	FloatingIP string
	SSHUser    string
	KeyName    string
}

// ServerRequest is a single boot request after reference resolution.
type ServerRequest struct {
	Name           string
	ImageID        string
	FlavorID       string
	NetworkID      string
	KeyName        string
	SecurityGroups []string
	// SchedulerHints bind the request to a reservation or allocation.
	SchedulerHints map[string]interface{}
	UserData       []byte
}

// Backend is the slice of the compute API the controller needs.
type Backend interface {
	CreateServer(req ServerRequest) (Server, error)
	GetServer(id string) (Server, error)
}

// Resolver turns human-readable image/flavor/network references into ids.
type Resolver interface {
	ResolveImage(ref string) (string, error)
	ResolveFlavor(ref string) (string, error)
	ResolveNetwork(ref string) (string, error)
}

// BareMetalOptions configure the bare-metal activation path explicitly; they
// are threaded through the call chain, never held in package state.
type BareMetalOptions struct {
	ForceIronic bool
	Image       string
	SSHUser     string
}

// BootSpec describes a batch of servers to boot against one reservation.
//
// The scheduler hint contract: virtual-instance reservations are referenced
// by the reservation id itself; physical-host reservations by the allocated
// node ids. The lease id is never used as a hint.
type BootSpec struct {
	ReservationID string
	// NodeIDs are the allocated bare-metal node ids; empty for virtual leases.
	NodeIDs        []string
	Image          string
	Flavor         string
	Network        string
	KeyName        string
	SecurityGroups []string
	Count          int
	NamePrefix     string
	UserData       []byte
	BareMetal      BareMetalOptions
}

// Controller boots servers and waits for them to become ACTIVE.
type Controller struct {
	backend  Backend
	resolver Resolver
	log      *slog.Logger
	clock    poll.Clock
}

// NewController builds a Controller. A nil clock means real time.
func NewController(backend Backend, resolver Resolver, log *slog.Logger, clock poll.Clock) *Controller {
	if clock == nil {
		clock = poll.RealClock()
	}
	return &Controller{backend: backend, resolver: resolver, log: log, clock: clock}
}

// ServerName yields the bare prefix for a single server and `prefix-i`
// (1-indexed) otherwise.
func ServerName(prefix string, index, count int) string {
	if count <= 1 {
		return prefix
	}
	return fmt.Sprintf("%s-%d", prefix, index+1)
}

// Boot resolves the references and boots Count servers sequentially. When
// booting server i fails, the servers requested so far are returned together
// with an error identifying the failed index; prior successes are not rolled
// back.
func (c *Controller) Boot(ctx context.Context, spec BootSpec) ([]Server, error) {
	if spec.Count < 1 {
		return nil, fault.New(fault.Validation, "server count must be at least 1")
	}
	if spec.ReservationID == "" {
		return nil, fault.New(fault.Validation, "reservation id is required")
	}

	imageID, err := c.resolver.ResolveImage(spec.Image)
	if err != nil {
		return nil, err
	}
	flavorID, err := c.resolver.ResolveFlavor(spec.Flavor)
	if err != nil {
		return nil, err
	}
	networkID, err := c.resolver.ResolveNetwork(spec.Network)
	if err != nil {
		return nil, err
	}

	physical := len(spec.NodeIDs) > 0
	if physical && spec.Count > len(spec.NodeIDs) {
		return nil, fault.New(fault.Validation,
			"requested %d servers but the reservation allocated only %d nodes", spec.Count, len(spec.NodeIDs))
	}

	booted := make([]Server, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		hint := spec.ReservationID
		if physical {
			hint = spec.NodeIDs[i]
		}

		name := ServerName(spec.NamePrefix, i, spec.Count)
		server, err := c.backend.CreateServer(ServerRequest{
			Name:           name,
			ImageID:        imageID,
			FlavorID:       flavorID,
			NetworkID:      networkID,
			KeyName:        spec.KeyName,
			SecurityGroups: spec.SecurityGroups,
			SchedulerHints: map[string]interface{}{"reservation": hint},
			UserData:       spec.UserData,
		})
		if err != nil {
			kind := fault.Boot
			if fault.Is(err, fault.NoValidHost) {
				kind = fault.NoValidHost
			}
			return booted, fault.Wrap(kind, err, "failed to boot server %d of %d (%s)", i+1, spec.Count, name)
		}

		c.log.Info("Server boot requested", "server", server.ID, "name", name, "hint", hint)
		booted = append(booted, server)
	}

	return booted, nil
}

// WaitForActive polls every server once per interval until all reach a
// terminal state or the budget elapses. A server transitioning to ERROR is
// recorded but does not abort polling of its siblings. Partial timeout is
// reported as a Timeout error alongside the last observed states.
func (c *Controller) WaitForActive(ctx context.Context, servers []Server, timeout, interval time.Duration) ([]Server, poll.Stats, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	current := make([]Server, len(servers))
	copy(current, servers)

	stats, err := poll.Run(ctx, c.clock, timeout, interval, func() (bool, error) {
		done := true
		for i := range current {
			if current[i].Status.Terminal() {
				continue
			}
			latest, err := c.backend.GetServer(current[i].ID)
			if err != nil {
				c.log.Warn("Server status poll failed, retrying", "server", current[i].ID, "error", err)
				done = false
				continue
			}
			if latest.Status == StatusError && current[i].Status != StatusError {
				c.log.Warn("Server entered ERROR state", "server", current[i].ID)
			}
			current[i].Status = latest.Status
			current[i].FixedIP = latest.FixedIP
			current[i].FloatingIP = latest.FloatingIP
			if !latest.Status.Terminal() {
				done = false
			}
		}
		return done, nil
	})
	if err != nil {
		if fault.Is(err, fault.Timeout) {
			err = fault.Wrap(fault.Timeout, err, "servers still pending after %s", timeout)
		}
		return current, stats, err
	}

	return current, stats, nil
}

// AnyError reports whether any server in the set ended up in ERROR.
func AnyError(servers []Server) bool {
	for _, s := range servers {
		if s.Status == StatusError {
			return true
		}
	}
	return false
}
