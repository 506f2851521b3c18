// Package openstack owns the authenticated session against the cloud and the
// per-service clients derived from it. Credentials come from the standard OS_*
// environment, the way an OpenRC file sets them.
package openstack

import (
	"fmt"
	"os"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"

	"github.com/envagent/envboot/blazar"
)

// Session bundles the service clients used by the controllers. Compute,
// Network and Reservation are always present; Image and BareMetal are nil on
// deployments that do not expose those services.
type Session struct {
	Provider    *gophercloud.ProviderClient
	Compute     *gophercloud.ServiceClient
	Network     *gophercloud.ServiceClient
	Image       *gophercloud.ServiceClient
	BareMetal   *gophercloud.ServiceClient
	Reservation *gophercloud.ServiceClient
}

// NewSession authenticates from the environment and builds the service
// clients in the OS_REGION_NAME region.
func NewSession() (*Session, error) {
	return NewSessionForRegion(os.Getenv("OS_REGION_NAME"))
}

// NewSessionForRegion is NewSession with an explicit region override.
func NewSessionForRegion(region string) (*Session, error) {
	opts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth options from env: %w", err)
	}

	provider, err := openstack.AuthenticatedClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}

	eo := gophercloud.EndpointOpts{Region: region}

	compute, err := openstack.NewComputeV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("failed to get compute client: %w", err)
	}

	network, err := openstack.NewNetworkV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("failed to get network client: %w", err)
	}

	reservation, err := blazar.NewReservationV1(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation client: %w", err)
	}

	session := &Session{
		Provider:    provider,
		Compute:     compute,
		Network:     network,
		Reservation: reservation,
	}

	// Optional services: absence only matters when a command needs them.
	if image, err := openstack.NewImageServiceV2(provider, eo); err == nil {
		session.Image = image
	}
	if baremetal, err := openstack.NewBareMetalV1(provider, eo); err == nil {
		baremetal.Microversion = "1.50"
		session.BareMetal = baremetal
	}

	return session, nil
}
