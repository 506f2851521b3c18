package compute

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/baremetal/v1/nodes"
	bmports "github.com/gophercloud/gophercloud/openstack/baremetal/v1/ports"
	neutronports "github.com/gophercloud/gophercloud/openstack/networking/v2/ports"

	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/poll"
)

// BareMetal is the slice of the Ironic API the activation protocol needs.
type BareMetal interface {
	SetNodeImage(nodeID, imageID string) error
	ProvisionNode(nodeID string) error
	NodeProvisionState(nodeID string) (string, error)
	NodeMACs(nodeID string) ([]string, error)
}

// PortLookup resolves a MAC address to the network port carrying it.
type PortLookup interface {
	PortByMAC(mac string) (Port, error)
}

// Port is the controller's view of a network port.
type Port struct {
	ID       string
	FixedIPs []string
}

// ActivateNode runs the Ironic activation protocol for one node: set the
// image source on the node, request the active provision state, then poll
// the provision state until the node deploys, fails, or the budget elapses.
// The outcome is mapped onto the shared status vocabulary.
func ActivateNode(ctx context.Context, bm BareMetal, clock poll.Clock, log *slog.Logger, nodeID, imageID string, timeout, interval time.Duration) (Status, error) {
	if err := bm.SetNodeImage(nodeID, imageID); err != nil {
		// Some deployments pre-bake the image source and reject updates.
		log.Warn("Could not set node image source, continuing", "node", nodeID, "error", err)
	}

	if err := bm.ProvisionNode(nodeID); err != nil {
		return StatusError, fault.Wrap(fault.Boot, err, "failed to request provisioning of node %s", nodeID)
	}

	status := StatusBuild
	_, err := poll.Run(ctx, clock, timeout, interval, func() (bool, error) {
		state, err := bm.NodeProvisionState(nodeID)
		if err != nil {
			log.Warn("Node provision state poll failed, retrying", "node", nodeID, "error", err)
			return false, nil
		}
		switch {
		case state == "active" || state == "deployed":
			status = StatusActive
			return true, nil
		case strings.Contains(state, "error") || strings.Contains(state, "failed"):
			status = StatusError
			return true, fault.New(fault.Server, "node %s entered provision state %q", nodeID, state)
		default:
			log.Debug("Node still provisioning", "node", nodeID, "state", state)
			return false, nil
		}
	})
	if err != nil {
		if fault.Is(err, fault.Timeout) {
			return StatusBuild, fault.Wrap(fault.Timeout, err, "node %s did not become active within %s", nodeID, timeout)
		}
		return status, err
	}

	return status, nil
}

// PortForNode discovers the network port of a bare-metal node by walking its
// Ironic ports and matching their MAC addresses against network ports. The
// returned port carries at least one fixed IP; floating IPs attach to it.
func PortForNode(bm BareMetal, lookup PortLookup, nodeID string) (Port, error) {
	macs, err := bm.NodeMACs(nodeID)
	if err != nil {
		return Port{}, fault.Wrap(fault.Backend, err, "failed to list ports of node %s", nodeID)
	}
	if len(macs) == 0 {
		return Port{}, fault.New(fault.NotFound, "node %s has no ports", nodeID)
	}

	for _, mac := range macs {
		port, err := lookup.PortByMAC(mac)
		if err != nil {
			if fault.IsNotFound(err) {
				continue
			}
			return Port{}, err
		}
		if len(port.FixedIPs) > 0 {
			return port, nil
		}
	}

	return Port{}, fault.New(fault.NotFound, "no network port with a fixed IP matches node %s", nodeID)
}

// FixedIPForNode is PortForNode reduced to the node's first fixed IP.
func FixedIPForNode(bm BareMetal, lookup PortLookup, nodeID string) (string, error) {
	port, err := PortForNode(bm, lookup, nodeID)
	if err != nil {
		return "", err
	}
	return port.FixedIPs[0], nil
}

// BareMetalClient is the gophercloud-backed BareMetal and PortLookup
// implementation.
type BareMetalClient struct {
	BareMetal *gophercloud.ServiceClient
	Network   *gophercloud.ServiceClient
}

var (
	_ BareMetal  = (*BareMetalClient)(nil)
	_ PortLookup = (*BareMetalClient)(nil)
)

func (c *BareMetalClient) SetNodeImage(nodeID, imageID string) error {
	_, err := nodes.Update(c.BareMetal, nodeID, nodes.UpdateOpts{
		nodes.UpdateOperation{
			Op:    nodes.ReplaceOp,
			Path:  "/instance_info/image_source",
			Value: imageID,
		},
	}).Extract()
	if err != nil {
		return fault.FromBackend(err)
	}
	return nil
}

func (c *BareMetalClient) ProvisionNode(nodeID string) error {
	err := nodes.ChangeProvisionState(c.BareMetal, nodeID, nodes.ProvisionStateOpts{
		Target: nodes.TargetActive,
	}).ExtractErr()
	if err != nil {
		return fault.FromBackend(err)
	}
	return nil
}

func (c *BareMetalClient) NodeProvisionState(nodeID string) (string, error) {
	node, err := nodes.Get(c.BareMetal, nodeID).Extract()
	if err != nil {
		return "", fault.FromBackend(err)
	}
	return node.ProvisionState, nil
}

func (c *BareMetalClient) NodeMACs(nodeID string) ([]string, error) {
	pages, err := bmports.List(c.BareMetal, bmports.ListOpts{NodeUUID: nodeID}).AllPages()
	if err != nil {
		return nil, fault.FromBackend(err)
	}
	list, err := bmports.ExtractPorts(pages)
	if err != nil {
		return nil, fault.FromBackend(err)
	}
	macs := make([]string, 0, len(list))
	for _, p := range list {
		if p.Address != "" {
			macs = append(macs, p.Address)
		}
	}
	return macs, nil
}

func (c *BareMetalClient) PortByMAC(mac string) (Port, error) {
	pages, err := neutronports.List(c.Network, neutronports.ListOpts{MACAddress: mac}).AllPages()
	if err != nil {
		return Port{}, fault.FromBackend(err)
	}
	list, err := neutronports.ExtractPorts(pages)
	if err != nil {
		return Port{}, fault.FromBackend(err)
	}
	if len(list) == 0 {
		return Port{}, fault.New(fault.NotFound, "no network port has MAC %s", mac)
	}

	out := Port{ID: list[0].ID}
	for _, ip := range list[0].FixedIPs {
		out.FixedIPs = append(out.FixedIPs, ip.IPAddress)
	}
	return out, nil
}
