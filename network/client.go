package network

import (
	"github.com/gophercloud/gophercloud"
	computefips "github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/floatingips"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/external"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/floatingips"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"

	"github.com/envagent/envboot/fault"
)

// Client is the gophercloud-backed Backend implementation.
type Client struct {
	Compute *gophercloud.ServiceClient
	Network *gophercloud.ServiceClient
}

var _ Backend = (*Client)(nil)

func (c *Client) ListProjectFloatingIPs() ([]FloatingIP, error) {
	pages, err := floatingips.List(c.Network, floatingips.ListOpts{}).AllPages()
	if err != nil {
		return nil, fault.FromBackend(err)
	}
	list, err := floatingips.ExtractFloatingIPs(pages)
	if err != nil {
		return nil, fault.FromBackend(err)
	}

	out := make([]FloatingIP, 0, len(list))
	for _, fip := range list {
		out = append(out, FloatingIP{ID: fip.ID, Address: fip.FloatingIP, PortID: fip.PortID})
	}
	return out, nil
}

func (c *Client) ExternalNetworkID() (string, error) {
	isExternal := true
	listOpts := external.ListOptsExt{
		ListOptsBuilder: networks.ListOpts{},
		External:        &isExternal,
	}

	pages, err := networks.List(c.Network, listOpts).AllPages()
	if err != nil {
		return "", fault.FromBackend(err)
	}

	var externals []struct {
		networks.Network
		external.NetworkExternalExt
	}
	if err := networks.ExtractNetworksInto(pages, &externals); err != nil {
		return "", fault.FromBackend(err)
	}
	if len(externals) == 0 {
		return "", fault.New(fault.NoExternalNetwork, "no external network is available in this project")
	}
	return externals[0].ID, nil
}

func (c *Client) AllocateFloatingIP(networkID string) (FloatingIP, error) {
	fip, err := floatingips.Create(c.Network, floatingips.CreateOpts{
		FloatingNetworkID: networkID,
	}).Extract()
	if err != nil {
		return FloatingIP{}, fault.FromBackend(err)
	}
	return FloatingIP{ID: fip.ID, Address: fip.FloatingIP, PortID: fip.PortID}, nil
}

func (c *Client) AssociateToServer(serverID, address string) error {
	err := computefips.AssociateInstance(c.Compute, serverID, computefips.AssociateOpts{
		FloatingIP: address,
	}).ExtractErr()
	if err != nil {
		return fault.FromBackend(err)
	}
	return nil
}

func (c *Client) AssociateToPort(fipID, portID string) error {
	_, err := floatingips.Update(c.Network, fipID, floatingips.UpdateOpts{
		PortID: &portID,
	}).Extract()
	if err != nil {
		return fault.FromBackend(err)
	}
	return nil
}
