// Package discovery inventories the reservable hosts of a site and answers
// capacity questions about a time window.
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/samber/lo"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/timeparse"
)

// DefaultProbeConcurrency bounds the availability probe worker pool.
const DefaultProbeConcurrency = 10

// Lease durations accepted anywhere in the system, in minutes. The upper
// bound is 31 days.
const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 44640
)

// Backend is the slice of the reservation API discovery needs.
type Backend interface {
	ListHosts() ([]blazar.Host, error)
	GetHost(id string) (blazar.Host, error)
	ListAllocations() ([]blazar.Allocation, error)
}

// Client adapts the blazar service package to the Backend interface.
type Client struct {
	Service *gophercloud.ServiceClient
}

var _ Backend = (*Client)(nil)

func (c *Client) ListHosts() ([]blazar.Host, error) {
	return blazar.ListHosts(c.Service).Extract()
}

func (c *Client) GetHost(id string) (blazar.Host, error) {
	host, err := blazar.GetHost(c.Service, id).Extract()
	if err != nil {
		return blazar.Host{}, err
	}
	if host == nil {
		return blazar.Host{}, fault.New(fault.NotFound, "host %s not found", id)
	}
	return *host, nil
}

func (c *Client) ListAllocations() ([]blazar.Allocation, error) {
	return blazar.ListAllocations(c.Service).Extract()
}

// Service answers inventory and capacity queries.
type Service struct {
	backend Backend
	log     *slog.Logger
}

func NewService(backend Backend, log *slog.Logger) *Service {
	return &Service{backend: backend, log: log}
}

// Inventory is the site's reservable host population grouped by node type.
type Inventory struct {
	Hosts     []blazar.Host
	NodeTypes map[string]int
}

// Inventory lists every host the site exposes and counts them per node type.
func (s *Service) Inventory() (Inventory, error) {
	hosts, err := s.backend.ListHosts()
	if err != nil {
		return Inventory{}, fault.Wrap(fault.Backend, err, "failed to list hosts")
	}
	return Inventory{
		Hosts: hosts,
		NodeTypes: lo.CountValuesBy(hosts, func(h blazar.Host) string {
			return h.NodeType
		}),
	}, nil
}

// ProbeFunc checks a single host and reports whether it is usable.
type ProbeFunc func(ctx context.Context, host blazar.Host) (bool, error)

// ProbeAvailability runs probe over every host with bounded concurrency.
// A probe failure excludes the host and is logged; it never aborts the batch.
// The returned slice preserves the input order of the hosts that passed.
func (s *Service) ProbeAvailability(ctx context.Context, hosts []blazar.Host, concurrency int, probe ProbeFunc) []blazar.Host {
	if concurrency <= 0 {
		concurrency = DefaultProbeConcurrency
	}

	available := make([]bool, len(hosts))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := range hosts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ok, err := probe(ctx, hosts[i])
			if err != nil {
				s.log.Warn("Host availability probe failed, excluding host",
					"host", hosts[i].ID, "error", err)
				return
			}
			available[i] = ok
		}(i)
	}
	wg.Wait()

	out := make([]blazar.Host, 0, len(hosts))
	for i, host := range hosts {
		if available[i] {
			out = append(out, host)
		}
	}
	return out
}

// ReservableProbe fetches the host's current record and reports its
// reservable flag.
func (s *Service) ReservableProbe(ctx context.Context, host blazar.Host) (bool, error) {
	latest, err := s.backend.GetHost(host.ID)
	if err != nil {
		return false, err
	}
	return latest.Reservable, nil
}

// CapacityRequest describes a capacity question about one time window.
type CapacityRequest struct {
	Zone     string
	NodeType string
	Start    time.Time
	// Duration is the requested lease length.
	Duration time.Duration
}

// CapacityReport is the answer: how many nodes are free for the window.
type CapacityReport struct {
	Zone           string    `json:"zone"`
	NodeType       string    `json:"node_type,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	TotalNodes     int       `json:"total_nodes"`
	AvailableNodes int       `json:"available_nodes"`
	FreeHosts      []string  `json:"free_hosts"`
}

// ValidateDuration enforces the accepted lease duration range.
func ValidateDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return fault.New(fault.Validation,
			"duration must be between %d and %d minutes, got %d",
			MinDurationMinutes, MaxDurationMinutes, minutes)
	}
	return nil
}

// Capacity counts the hosts free over [start, start+duration). A host is free
// when it is reservable and no existing allocation overlaps the window.
func (s *Service) Capacity(ctx context.Context, req CapacityRequest) (CapacityReport, error) {
	minutes := int(req.Duration / time.Minute)
	if err := ValidateDuration(minutes); err != nil {
		return CapacityReport{}, err
	}

	start := req.Start.UTC()
	end := start.Add(req.Duration)

	hosts, err := s.backend.ListHosts()
	if err != nil {
		return CapacityReport{}, fault.Wrap(fault.Backend, err, "failed to list hosts")
	}
	allocations, err := s.backend.ListAllocations()
	if err != nil {
		return CapacityReport{}, fault.Wrap(fault.Backend, err, "failed to list allocations")
	}

	byHost := lo.SliceToMap(allocations, func(a blazar.Allocation) (string, blazar.Allocation) {
		return a.ResourceID, a
	})

	report := CapacityReport{
		Zone:      req.Zone,
		NodeType:  req.NodeType,
		Start:     start,
		End:       end,
		FreeHosts: []string{},
	}
	for _, host := range hosts {
		if req.NodeType != "" && host.NodeType != req.NodeType {
			continue
		}
		report.TotalNodes++
		if !host.Reservable {
			continue
		}
		if allocation, ok := byHost[host.ID]; ok && windowTaken(allocation, start, end) {
			continue
		}
		report.AvailableNodes++
		report.FreeHosts = append(report.FreeHosts, host.ID)
	}

	return report, nil
}

func windowTaken(allocation blazar.Allocation, start, end time.Time) bool {
	for _, r := range allocation.Reservations {
		if timeparse.Overlap(start, end, r.StartDate.Time, r.EndDate.Time) {
			return true
		}
	}
	return false
}
