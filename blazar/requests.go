package blazar

import (
	"time"

	"github.com/gophercloud/gophercloud"

	"github.com/envagent/envboot/internal/timeparse"
)

// CreateOptsBuilder allows extensions to add parameters to a lease create request.
type CreateOptsBuilder interface {
	ToLeaseCreateMap() (map[string]interface{}, error)
}

// ReservationOpts describes one reservation embedded in a lease create request.
type ReservationOpts struct {
	ResourceType         string
	Min                  int
	Max                  int
	ResourceProperties   string
	HypervisorProperties string
}

// CreateOpts specifies a new lease.
type CreateOpts struct {
	Name         string
	Start        time.Time
	End          time.Time
	Reservations []ReservationOpts
}

// ToLeaseCreateMap builds the request body. Empty property filters are sent
// as the empty JSON list the backend expects.
func (opts CreateOpts) ToLeaseCreateMap() (map[string]interface{}, error) {
	reservations := make([]map[string]interface{}, 0, len(opts.Reservations))
	for _, r := range opts.Reservations {
		resourceProps := r.ResourceProperties
		if resourceProps == "" {
			resourceProps = "[]"
		}
		hypervisorProps := r.HypervisorProperties
		if hypervisorProps == "" {
			hypervisorProps = "[]"
		}
		reservations = append(reservations, map[string]interface{}{
			"resource_type":         r.ResourceType,
			"min":                   r.Min,
			"max":                   r.Max,
			"resource_properties":   resourceProps,
			"hypervisor_properties": hypervisorProps,
		})
	}

	return map[string]interface{}{
		"name":         opts.Name,
		"start_date":   opts.Start.UTC().Format(timeparse.Blazar),
		"end_date":     opts.End.UTC().Format(timeparse.Blazar),
		"reservations": reservations,
		"events":       []interface{}{},
	}, nil
}

// CreateLease submits a lease create request.
func CreateLease(c *gophercloud.ServiceClient, opts CreateOptsBuilder) (r CreateResult) {
	b, err := opts.ToLeaseCreateMap()
	if err != nil {
		r.Err = err
		return
	}
	resp, err := c.Post(leasesURL(c), b, &r.Body, &gophercloud.RequestOpts{
		OkCodes: []int{200, 201, 202},
	})
	_, r.Header, r.Err = gophercloud.ParseResponse(resp, err)
	return
}

// GetLease retrieves a lease by id.
func GetLease(c *gophercloud.ServiceClient, id string) (r GetResult) {
	resp, err := c.Get(leaseURL(c, id), &r.Body, nil)
	_, r.Header, r.Err = gophercloud.ParseResponse(resp, err)
	return
}

// DeleteLease removes a lease by id. The backend answers 204 on success and
// 404 when the lease is already gone; the caller decides whether 404 counts
// as success.
func DeleteLease(c *gophercloud.ServiceClient, id string) (r DeleteResult) {
	resp, err := c.Delete(leaseURL(c, id), nil)
	_, r.Header, r.Err = gophercloud.ParseResponse(resp, err)
	return
}

// ListLeases retrieves every lease visible to the project.
func ListLeases(c *gophercloud.ServiceClient) (r ListResult) {
	resp, err := c.Get(leasesURL(c), &r.Body, nil)
	_, r.Header, r.Err = gophercloud.ParseResponse(resp, err)
	return
}

// ListHosts retrieves the reservable host inventory.
func ListHosts(c *gophercloud.ServiceClient) (r HostListResult) {
	resp, err := c.Get(hostsURL(c), &r.Body, nil)
	_, r.Header, r.Err = gophercloud.ParseResponse(resp, err)
	return
}

// GetHost retrieves a single reservable host by id.
func GetHost(c *gophercloud.ServiceClient, id string) (r HostResult) {
	resp, err := c.Get(hostURL(c, id), &r.Body, nil)
	_, r.Header, r.Err = gophercloud.ParseResponse(resp, err)
	return
}

// ListAllocations retrieves the reservation windows claimed on every host.
func ListAllocations(c *gophercloud.ServiceClient) (r AllocationListResult) {
	resp, err := c.Get(allocationsURL(c), &r.Body, nil)
	_, r.Header, r.Err = gophercloud.ParseResponse(resp, err)
	return
}
