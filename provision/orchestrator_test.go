package provision

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/compute"
	"github.com/envagent/envboot/discovery"
	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/poll"
	"github.com/envagent/envboot/keys"
	"github.com/envagent/envboot/lease"
	"github.com/envagent/envboot/network"
	"github.com/envagent/envboot/selection"
)

type mockLeases struct {
	created    *lease.CreateSpec
	lease      blazar.Lease
	createErr  error
	waitErr    error
	nodeIDs    []string
	waits      int
}

func (m *mockLeases) Create(spec lease.CreateSpec) (*blazar.Lease, error) {
	m.created = &spec
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &m.lease, nil
}

func (m *mockLeases) WaitForActive(ctx context.Context, id string, timeout, interval time.Duration) (*blazar.Lease, poll.Stats, error) {
	m.waits++
	if m.waitErr != nil {
		return nil, poll.Stats{}, m.waitErr
	}
	m.lease.Status = blazar.StatusActive
	return &m.lease, poll.Stats{Polls: 1}, nil
}

func (m *mockLeases) ReservationID(l *blazar.Lease) (string, error) {
	if len(l.Reservations) == 0 {
		return "", fault.New(fault.NotFound, "lease %s carries no reservations", l.ID)
	}
	return l.Reservations[0].ID, nil
}

func (m *mockLeases) ResourceIDs(l *blazar.Lease) []string { return m.nodeIDs }

type mockServers struct {
	bootSpec *compute.BootSpec
	servers  []compute.Server
	bootErr  error
	waitErr  error
}

func (m *mockServers) Boot(ctx context.Context, spec compute.BootSpec) ([]compute.Server, error) {
	m.bootSpec = &spec
	return m.servers, m.bootErr
}

func (m *mockServers) WaitForActive(ctx context.Context, servers []compute.Server, timeout, interval time.Duration) ([]compute.Server, poll.Stats, error) {
	if m.waitErr != nil {
		return servers, poll.Stats{}, m.waitErr
	}
	out := make([]compute.Server, len(servers))
	copy(out, servers)
	for i := range out {
		out[i].Status = compute.StatusActive
		out[i].FixedIP = "10.0.0.7"
	}
	return out, poll.Stats{Polls: 2}, nil
}

type mockFloating struct {
	target *network.Target
	err    error
}

func (m *mockFloating) EnsureFloatingIP(target network.Target) (network.Result, error) {
	m.target = &target
	if m.err != nil {
		return network.Result{}, m.err
	}
	return network.Result{Address: "203.0.113.10", Allocated: true}, nil
}

type mockKeys struct {
	ensured []string
	err     error
}

func (m *mockKeys) Ensure(name, publicKeyPath, saveDir string) (keys.KeyPair, bool, error) {
	m.ensured = append(m.ensured, name)
	return keys.KeyPair{Name: name}, false, m.err
}

type mockCatalog struct {
	images []string
}

func (m *mockCatalog) ListImageNames() ([]string, error) { return m.images, nil }

func (m *mockCatalog) ResolveNetwork(ref string) (string, error) {
	return "net-" + ref, nil
}

type mockInventory struct{}

func (mockInventory) Inventory() (discovery.Inventory, error) {
	return discovery.Inventory{NodeTypes: map[string]int{
		"compute_cascadelake": 4,
		"gpu_rtx_6000":        2,
	}}, nil
}

func testOrchestrator(dir string) (*Orchestrator, *mockLeases, *mockServers, *mockFloating, *mockKeys) {
	leases := &mockLeases{
		lease: blazar.Lease{
			ID:     "lease-1",
			Status: blazar.StatusPending,
			Reservations: []blazar.Reservation{
				{ID: "res-1", ResourceType: blazar.ResourceTypePhysicalHost},
			},
		},
		nodeIDs: []string{"node-7"},
	}
	servers := &mockServers{servers: []compute.Server{{ID: "srv-1", Name: "demo", Status: compute.StatusBuild}}}
	floating := &mockFloating{}
	keyring := &mockKeys{}

	o := &Orchestrator{
		Leases:    leases,
		Servers:   servers,
		Floating:  floating,
		Keys:      keyring,
		Catalog:   &mockCatalog{images: []string{"CC-Ubuntu22.04", "CC-CentOS9-Stream"}},
		Inventory: mockInventory{},
		Analyzer:  selection.Heuristic{},
		Images:    selection.Heuristic{},
		Resources: selection.Heuristic{},
		Durations: selection.Heuristic{},
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	_ = dir
	return o, leases, servers, floating, keyring
}

func TestRunHappyPath(t *testing.T) {
	dir := t.TempDir()
	o, leases, servers, floating, keyring := testOrchestrator(dir)

	result, err := o.Run(context.Background(), Request{
		ServerName: "demo",
		Network:    "sharednet1",
		NodeType:   "compute_cascadelake",
		Image:      "CC-Ubuntu22.04",
		Duration:   2 * time.Hour,
		FloatingIP: true,
		OutputDir:  dir,
	})
	require.NoError(t, err)

	assert.Equal(t, "srv-1", result.ServerID)
	assert.Equal(t, "lease-1", result.LeaseID)
	assert.Equal(t, "res-1", result.ReservationID)
	assert.Equal(t, "compute_cascadelake", result.NodeType)
	assert.Equal(t, "net-sharednet1", result.NetworkID)
	assert.Equal(t, "ubuntu", result.SSHUser)
	require.NotNil(t, result.FloatingIP)
	assert.Equal(t, "203.0.113.10", *result.FloatingIP)

	require.NotNil(t, leases.created)
	assert.Equal(t, "demo-lease", leases.created.Name)
	assert.Equal(t, blazar.ResourceTypePhysicalHost, leases.created.ResourceType)
	assert.Equal(t, `["=","$node_type","compute_cascadelake"]`, leases.created.ResourceFilter)
	assert.Equal(t, 2*time.Hour, leases.created.End.Sub(leases.created.Start))

	require.NotNil(t, servers.bootSpec)
	assert.Equal(t, "res-1", servers.bootSpec.ReservationID)
	assert.Equal(t, []string{"node-7"}, servers.bootSpec.NodeIDs)
	assert.Equal(t, "demo", servers.bootSpec.NamePrefix)

	assert.Equal(t, []string{"demo-key"}, keyring.ensured)
	require.NotNil(t, floating.target)
	assert.Equal(t, "srv-1", floating.target.ServerID)

	// The result file is the persisted artifact of the run.
	raw, err := os.ReadFile(filepath.Join(dir, "demo_info.json"))
	require.NoError(t, err)
	var saved Result
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, result.ServerID, saved.ServerID)
}

func TestRunWithoutFloatingIP(t *testing.T) {
	dir := t.TempDir()
	o, _, _, floating, _ := testOrchestrator(dir)

	result, err := o.Run(context.Background(), Request{
		ServerName: "demo",
		Network:    "sharednet1",
		NodeType:   "compute_cascadelake",
		Image:      "CC-Ubuntu22.04",
		Duration:   time.Hour,
		OutputDir:  dir,
	})
	require.NoError(t, err)
	assert.Nil(t, result.FloatingIP)
	assert.Nil(t, floating.target)
}

func TestRunSelectorsFillBlanks(t *testing.T) {
	dir := t.TempDir()
	o, leases, _, _, _ := testOrchestrator(dir)

	result, err := o.Run(context.Background(), Request{
		ServerName: "demo",
		Network:    "sharednet1",
		Duration:   time.Hour,
		OutputDir:  dir,
	})
	require.NoError(t, err)

	// Heuristic defaults: ubuntu image, compute node type.
	assert.Equal(t, "CC-Ubuntu22.04", result.Image)
	assert.Equal(t, "compute_cascadelake", result.NodeType)
	assert.Contains(t, leases.created.ResourceFilter, "compute_cascadelake")
}

func TestRunBootFailureLeavesLease(t *testing.T) {
	dir := t.TempDir()
	o, leases, servers, _, _ := testOrchestrator(dir)
	servers.bootErr = fault.New(fault.NoValidHost, "No valid host was found")

	_, err := o.Run(context.Background(), Request{
		ServerName: "demo",
		Network:    "sharednet1",
		NodeType:   "compute_cascadelake",
		Image:      "CC-Ubuntu22.04",
		Duration:   time.Hour,
		OutputDir:  dir,
	})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.NoValidHost))
	// The lease was created and is left in place.
	assert.NotNil(t, leases.created)
	assert.NoFileExists(t, filepath.Join(dir, "demo_info.json"))
}

func TestRunServerErrorStateFails(t *testing.T) {
	dir := t.TempDir()
	o, _, servers, _, _ := testOrchestrator(dir)
	servers.waitErr = nil
	servers.servers = []compute.Server{{ID: "srv-1", Name: "demo", Status: compute.StatusError}}

	o.Servers = passthroughServers{servers.servers}

	_, err := o.Run(context.Background(), Request{
		ServerName: "demo",
		Network:    "sharednet1",
		NodeType:   "compute_cascadelake",
		Image:      "CC-Ubuntu22.04",
		Duration:   time.Hour,
		OutputDir:  dir,
	})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Server))
}

type passthroughServers struct {
	servers []compute.Server
}

func (p passthroughServers) Boot(ctx context.Context, spec compute.BootSpec) ([]compute.Server, error) {
	return p.servers, nil
}

func (p passthroughServers) WaitForActive(ctx context.Context, servers []compute.Server, timeout, interval time.Duration) ([]compute.Server, poll.Stats, error) {
	return servers, poll.Stats{Polls: 1}, nil
}

func TestRunRequiresServerName(t *testing.T) {
	o, _, _, _, _ := testOrchestrator(t.TempDir())

	_, err := o.Run(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestWriteResult(t *testing.T) {
	dir := t.TempDir()
	fip := "203.0.113.4"
	require.NoError(t, WriteResult(dir, Result{ServerName: "demo", FloatingIP: &fip}))

	raw, err := os.ReadFile(filepath.Join(dir, "demo_info.json"))
	require.NoError(t, err)
	var saved map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "203.0.113.4", saved["floating_ip"])
}
