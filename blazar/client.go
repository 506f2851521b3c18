// Package blazar is a gophercloud-style client for the Blazar reservation
// service, which gophercloud itself does not ship: time-boxed hardware leases,
// reservable host inventory and host allocations.
package blazar

import (
	"strings"

	"github.com/gophercloud/gophercloud"
)

// NewReservationV1 creates a ServiceClient for the reservation service,
// located through the provider's service catalog.
func NewReservationV1(provider *gophercloud.ProviderClient, eo gophercloud.EndpointOpts) (*gophercloud.ServiceClient, error) {
	eo.ApplyDefaults("reservation")
	url, err := provider.EndpointLocator(eo)
	if err != nil {
		return nil, err
	}
	// Some catalogs register the unversioned endpoint.
	if !strings.Contains(url, "/v1") {
		url += "v1/"
	}
	return &gophercloud.ServiceClient{
		ProviderClient: provider,
		Endpoint:       url,
		Type:           "reservation",
	}, nil
}

func leasesURL(c *gophercloud.ServiceClient) string {
	return c.ServiceURL("leases")
}

func leaseURL(c *gophercloud.ServiceClient, id string) string {
	return c.ServiceURL("leases", id)
}

func hostsURL(c *gophercloud.ServiceClient) string {
	return c.ServiceURL("os-hosts")
}

func hostURL(c *gophercloud.ServiceClient, id string) string {
	return c.ServiceURL("os-hosts", id)
}

func allocationsURL(c *gophercloud.ServiceClient) string {
	return c.ServiceURL("os-hosts", "allocations")
}
