// Package network attaches floating IPs to servers. Allocation is lazy: an
// address already bound to the server is kept, an unbound project address is
// reused, and only then is a new one allocated from the external network.
package network

import (
	"log/slog"

	"github.com/envagent/envboot/fault"
)

// FloatingIP is the manager's view of a floating IP allocation.
type FloatingIP struct {
	ID      string
	Address string
	// PortID is empty while the address is unattached.
	PortID string
}

// Backend is the slice of the networking and compute APIs the manager needs.
type Backend interface {
	ListProjectFloatingIPs() ([]FloatingIP, error)
	ExternalNetworkID() (string, error)
	AllocateFloatingIP(networkID string) (FloatingIP, error)
	AssociateToServer(serverID, address string) error
	AssociateToPort(fipID, portID string) error
}

// Target identifies where the floating IP must end up.
type Target struct {
	ServerID string
	// PortID routes the attachment through the network port instead of the
	// compute API; bare-metal nodes require this.
	PortID string
	// Existing is the floating IP already bound to the server, if any.
	Existing string
}

// Result reports what EnsureFloatingIP actually did.
type Result struct {
	Address   string
	Reused    bool
	Allocated bool
}

// Manager implements the floating IP attachment policy.
type Manager struct {
	backend Backend
	log     *slog.Logger
}

func NewManager(backend Backend, log *slog.Logger) *Manager {
	return &Manager{backend: backend, log: log}
}

// EnsureFloatingIP guarantees the target has a public address. Preference
// order: the address already on the server, then any unattached address owned
// by the project, then a fresh allocation from the external network. A cloud
// without an external network yields a NoExternalNetwork error.
func (m *Manager) EnsureFloatingIP(target Target) (Result, error) {
	if target.ServerID == "" {
		return Result{}, fault.New(fault.Validation, "server id is required")
	}

	if target.Existing != "" {
		m.log.Info("Reusing floating IP already attached", "server", target.ServerID, "address", target.Existing)
		return Result{Address: target.Existing, Reused: true}, nil
	}

	fip, reused, err := m.acquire()
	if err != nil {
		return Result{}, err
	}

	if target.PortID != "" {
		err = m.backend.AssociateToPort(fip.ID, target.PortID)
	} else {
		err = m.backend.AssociateToServer(target.ServerID, fip.Address)
	}
	if err != nil {
		return Result{}, fault.Wrap(fault.Backend, err,
			"failed to attach floating IP %s to server %s", fip.Address, target.ServerID)
	}

	m.log.Info("Floating IP attached", "server", target.ServerID, "address", fip.Address, "reused", reused)
	return Result{Address: fip.Address, Reused: reused, Allocated: !reused}, nil
}

func (m *Manager) acquire() (FloatingIP, bool, error) {
	existing, err := m.backend.ListProjectFloatingIPs()
	if err != nil {
		return FloatingIP{}, false, fault.Wrap(fault.Backend, err, "failed to list floating IPs")
	}
	for _, fip := range existing {
		if fip.PortID == "" {
			return fip, true, nil
		}
	}

	networkID, err := m.backend.ExternalNetworkID()
	if err != nil {
		return FloatingIP{}, false, err
	}

	fip, err := m.backend.AllocateFloatingIP(networkID)
	if err != nil {
		return FloatingIP{}, false, fault.Wrap(fault.Backend, err, "failed to allocate floating IP")
	}
	return fip, false, nil
}
