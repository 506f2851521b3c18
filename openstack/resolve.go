package openstack

import (
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/images"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"

	"github.com/envagent/envboot/fault"
)

// ResolveImage maps an image name or id to its id. The error names the
// reference that could not be resolved.
func ResolveImage(compute *gophercloud.ServiceClient, ref string) (string, error) {
	pages, err := images.ListDetail(compute, images.ListOpts{}).AllPages()
	if err != nil {
		return "", fault.FromBackend(err)
	}
	all, err := images.ExtractImages(pages)
	if err != nil {
		return "", fault.FromBackend(err)
	}
	for _, image := range all {
		if image.ID == ref || image.Name == ref {
			return image.ID, nil
		}
	}
	return "", fault.New(fault.NotFound, "image not found: %s", ref)
}

// ResolveFlavor maps a flavor name or id to its id.
func ResolveFlavor(compute *gophercloud.ServiceClient, ref string) (string, error) {
	pages, err := flavors.ListDetail(compute, flavors.ListOpts{}).AllPages()
	if err != nil {
		return "", fault.FromBackend(err)
	}
	all, err := flavors.ExtractFlavors(pages)
	if err != nil {
		return "", fault.FromBackend(err)
	}
	for _, flavor := range all {
		if flavor.ID == ref || flavor.Name == ref {
			return flavor.ID, nil
		}
	}
	return "", fault.New(fault.NotFound, "flavor not found: %s", ref)
}

// ResolveNetwork maps a network name or id to its id.
func ResolveNetwork(network *gophercloud.ServiceClient, ref string) (string, error) {
	pages, err := networks.List(network, networks.ListOpts{}).AllPages()
	if err != nil {
		return "", fault.FromBackend(err)
	}
	all, err := networks.ExtractNetworks(pages)
	if err != nil {
		return "", fault.FromBackend(err)
	}
	for _, net := range all {
		if net.ID == ref || net.Name == ref {
			return net.ID, nil
		}
	}
	return "", fault.New(fault.NotFound, "network not found: %s", ref)
}

// ListImageNames returns the names of every image visible to the project.
func ListImageNames(compute *gophercloud.ServiceClient) ([]string, error) {
	pages, err := images.ListDetail(compute, images.ListOpts{}).AllPages()
	if err != nil {
		return nil, fault.FromBackend(err)
	}
	all, err := images.ExtractImages(pages)
	if err != nil {
		return nil, fault.FromBackend(err)
	}
	names := make([]string, 0, len(all))
	for _, image := range all {
		if image.Name != "" {
			names = append(names, image.Name)
		}
	}
	return names, nil
}

// Session-level conveniences used by the orchestration path.

func (s *Session) ResolveImage(ref string) (string, error) {
	return ResolveImage(s.Compute, ref)
}

func (s *Session) ResolveFlavor(ref string) (string, error) {
	return ResolveFlavor(s.Compute, ref)
}

func (s *Session) ResolveNetwork(ref string) (string, error) {
	return ResolveNetwork(s.Network, ref)
}

func (s *Session) ListImageNames() ([]string, error) {
	return ListImageNames(s.Compute)
}
