package blazar

import (
	"github.com/gophercloud/gophercloud"
)

type leaseResult struct {
	gophercloud.Result
}

// Extract interprets the result body as a single lease.
func (r leaseResult) Extract() (*Lease, error) {
	var s struct {
		Lease *Lease `json:"lease"`
	}
	err := r.ExtractInto(&s)
	return s.Lease, err
}

// CreateResult is the response of a CreateLease call.
type CreateResult struct {
	leaseResult
}

// GetResult is the response of a GetLease call.
type GetResult struct {
	leaseResult
}

// DeleteResult is the response of a DeleteLease call.
type DeleteResult struct {
	gophercloud.ErrResult
}

// ListResult is the response of a ListLeases call.
type ListResult struct {
	gophercloud.Result
}

// Extract interprets the result body as a list of leases.
func (r ListResult) Extract() ([]Lease, error) {
	var s struct {
		Leases []Lease `json:"leases"`
	}
	err := r.ExtractInto(&s)
	return s.Leases, err
}

// HostResult is the response of a GetHost call.
type HostResult struct {
	gophercloud.Result
}

// Extract interprets the result body as a single host.
func (r HostResult) Extract() (*Host, error) {
	var s struct {
		Host *Host `json:"host"`
	}
	err := r.ExtractInto(&s)
	return s.Host, err
}

// HostListResult is the response of a ListHosts call.
type HostListResult struct {
	gophercloud.Result
}

// Extract interprets the result body as a list of hosts.
func (r HostListResult) Extract() ([]Host, error) {
	var s struct {
		Hosts []Host `json:"hosts"`
	}
	err := r.ExtractInto(&s)
	return s.Hosts, err
}

// AllocationListResult is the response of a ListAllocations call.
type AllocationListResult struct {
	gophercloud.Result
}

// Extract interprets the result body as a list of host allocations.
func (r AllocationListResult) Extract() ([]Allocation, error) {
	var s struct {
		Allocations []Allocation `json:"allocations"`
	}
	err := r.ExtractInto(&s)
	return s.Allocations, err
}
