// Package provision runs the full pipeline from a repository to a reachable
// server: requirements, selection, keypair, lease, boot, floating IP, and a
// persisted result file. Stages run strictly in order; a failed stage stops
// the run and leaves earlier side effects in place for inspection.
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/compute"
	"github.com/envagent/envboot/discovery"
	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/poll"
	"github.com/envagent/envboot/keys"
	"github.com/envagent/envboot/lease"
	"github.com/envagent/envboot/network"
	"github.com/envagent/envboot/repo"
	"github.com/envagent/envboot/selection"
)

// Result is the artifact persisted after a successful run, one JSON file per
// server name.
type Result struct {
	ServerName    string    `json:"server_name"`
	ServerID      string    `json:"server_id"`
	LeaseID       string    `json:"lease_id"`
	ReservationID string    `json:"reservation_id"`
	FloatingIP    *string   `json:"floating_ip"`
	FixedIP       string    `json:"fixed_ip,omitempty"`
	Image         string    `json:"image"`
	NodeType      string    `json:"node_type"`
	KeyName       string    `json:"key_name"`
	NetworkID     string    `json:"network_id"`
	SSHUser       string    `json:"ssh_user,omitempty"`
	LeaseEnd      time.Time `json:"lease_end"`
}

// Leases is the lease lifecycle surface the orchestrator consumes.
type Leases interface {
	Create(spec lease.CreateSpec) (*blazar.Lease, error)
	WaitForActive(ctx context.Context, id string, timeout, interval time.Duration) (*blazar.Lease, poll.Stats, error)
	ReservationID(l *blazar.Lease) (string, error)
	ResourceIDs(l *blazar.Lease) []string
}

// Servers is the boot-and-wait surface.
type Servers interface {
	Boot(ctx context.Context, spec compute.BootSpec) ([]compute.Server, error)
	WaitForActive(ctx context.Context, servers []compute.Server, timeout, interval time.Duration) ([]compute.Server, poll.Stats, error)
}

// Floating attaches public addresses.
type Floating interface {
	EnsureFloatingIP(target network.Target) (network.Result, error)
}

// Keys ensures the boot keypair exists.
type Keys interface {
	Ensure(name, publicKeyPath, saveDir string) (keys.KeyPair, bool, error)
}

// Catalog lists images and resolves network references.
type Catalog interface {
	ListImageNames() ([]string, error)
	ResolveNetwork(ref string) (string, error)
}

// Inventory exposes the site's node types.
type Inventory interface {
	Inventory() (discovery.Inventory, error)
}

// Request configures one provisioning run.
type Request struct {
	RepoURL    string
	RepoBranch string
	WorkDir    string

	LeaseName  string
	ServerName string
	OutputDir  string

	// Overrides; empty values let the selectors decide.
	NodeType string
	Image    string
	Network  string
	KeyName  string
	Duration time.Duration

	PublicKeyPath string
	FloatingIP    bool
	BareMetal     compute.BareMetalOptions

	LeaseTimeout  time.Duration
	ServerTimeout time.Duration
	PollInterval  time.Duration
}

// Progress is called as each stage begins, with a short human description.
// The CLI feeds it to the spinner; a nil Progress is ignored.
type Progress func(stage string)

// Orchestrator wires the collaborators of a provisioning run.
type Orchestrator struct {
	Leases    Leases
	Servers   Servers
	Floating  Floating
	Keys      Keys
	Catalog   Catalog
	Inventory Inventory

	Analyzer  selection.Analyzer
	Images    selection.ImageSelector
	Resources selection.ResourceSelector
	Durations selection.DurationAdvisor

	Log      *slog.Logger
	Progress Progress
}

func (o *Orchestrator) stage(name string) {
	o.Log.Info("Stage", "name", name)
	if o.Progress != nil {
		o.Progress(name)
	}
}

// Run executes the pipeline and persists `<server_name>_info.json` in
// req.OutputDir on success. There is no cross-stage rollback: a boot failure
// leaves the lease in place.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if req.ServerName == "" {
		return Result{}, fault.New(fault.Validation, "server name is required")
	}
	if req.LeaseName == "" {
		req.LeaseName = req.ServerName + "-lease"
	}
	if req.PollInterval <= 0 {
		req.PollInterval = 10 * time.Second
	}
	if req.LeaseTimeout <= 0 {
		req.LeaseTimeout = 10 * time.Minute
	}
	if req.ServerTimeout <= 0 {
		req.ServerTimeout = 20 * time.Minute
	}

	requirements, err := o.analyzeRepo(ctx, req)
	if err != nil {
		return Result{}, err
	}

	o.stage("Selecting node type")
	nodeType, filter, err := o.selectResource(ctx, requirements, req)
	if err != nil {
		return Result{}, err
	}

	o.stage("Selecting image")
	image, err := o.selectImage(ctx, requirements, req)
	if err != nil {
		return Result{}, err
	}

	o.stage("Ensuring keypair")
	keyName := req.KeyName
	if keyName == "" {
		keyName = req.ServerName + "-key"
	}
	if _, _, err := o.Keys.Ensure(keyName, req.PublicKeyPath, req.OutputDir); err != nil {
		return Result{}, err
	}

	o.stage("Resolving network")
	networkID, err := o.Catalog.ResolveNetwork(req.Network)
	if err != nil {
		return Result{}, err
	}

	duration := req.Duration
	if duration <= 0 {
		duration = selection.AdviseDurationOrDefault(ctx, o.Durations, requirements)
	}

	o.stage("Creating lease")
	start := time.Now().UTC().Add(2 * time.Minute)
	created, err := o.Leases.Create(lease.CreateSpec{
		Name:           req.LeaseName,
		ResourceType:   blazar.ResourceTypePhysicalHost,
		ResourceFilter: filter,
		Start:          start,
		End:            start.Add(duration),
		MinCount:       1,
		MaxCount:       1,
	})
	if err != nil {
		return Result{}, err
	}

	o.stage("Waiting for lease to become active")
	active, _, err := o.Leases.WaitForActive(ctx, created.ID, req.LeaseTimeout, req.PollInterval)
	if err != nil {
		return Result{}, err
	}
	reservationID, err := o.Leases.ReservationID(active)
	if err != nil {
		return Result{}, err
	}

	o.stage("Booting server")
	booted, err := o.Servers.Boot(ctx, compute.BootSpec{
		ReservationID: reservationID,
		NodeIDs:       o.Leases.ResourceIDs(active),
		Image:         image,
		Flavor:        "baremetal",
		Network:       networkID,
		KeyName:       keyName,
		Count:         1,
		NamePrefix:    req.ServerName,
		BareMetal:     req.BareMetal,
	})
	if err != nil {
		return Result{}, err
	}

	o.stage("Waiting for server to become active")
	ready, _, err := o.Servers.WaitForActive(ctx, booted, req.ServerTimeout, req.PollInterval)
	if err != nil {
		return Result{}, err
	}
	server := ready[0]
	if server.Status == compute.StatusError {
		return Result{}, fault.New(fault.Server, "server %s entered ERROR state", server.ID)
	}

	result := Result{
		ServerName:    server.Name,
		ServerID:      server.ID,
		LeaseID:       active.ID,
		ReservationID: reservationID,
		FixedIP:       server.FixedIP,
		Image:         image,
		NodeType:      nodeType,
		KeyName:       keyName,
		NetworkID:     networkID,
		SSHUser:       compute.SSHUserForImage(image),
		LeaseEnd:      active.EndDate.Time,
	}

	if req.FloatingIP {
		o.stage("Attaching floating IP")
		attached, err := o.Floating.EnsureFloatingIP(network.Target{
			ServerID: server.ID,
			Existing: server.FloatingIP,
		})
		if err != nil {
			return Result{}, err
		}
		result.FloatingIP = &attached.Address
	}

	o.stage("Writing result")
	if err := WriteResult(req.OutputDir, result); err != nil {
		return Result{}, err
	}

	return result, nil
}

func (o *Orchestrator) analyzeRepo(ctx context.Context, req Request) (selection.Requirements, error) {
	if req.RepoURL == "" {
		return selection.Requirements{}, nil
	}

	o.stage("Cloning repository")
	dir := req.WorkDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "envboot-"+req.ServerName)
	}
	if err := repo.Clone(ctx, req.RepoURL, req.RepoBranch, dir); err != nil {
		return selection.Requirements{}, err
	}

	o.stage("Analyzing environment files")
	files, err := repo.EnvironmentFiles(dir)
	if err != nil {
		return selection.Requirements{}, err
	}
	requirements, err := o.Analyzer.Analyze(ctx, files)
	if err != nil {
		o.Log.Warn("Requirement analysis failed, using heuristic", "error", err)
		return selection.Heuristic{}.Analyze(ctx, files)
	}
	return requirements, nil
}

func (o *Orchestrator) selectResource(ctx context.Context, requirements selection.Requirements, req Request) (string, string, error) {
	if req.NodeType != "" {
		return req.NodeType, selection.NodeTypeFilter(req.NodeType), nil
	}

	inv, err := o.Inventory.Inventory()
	if err != nil {
		return "", "", err
	}
	nodeTypes := make([]string, 0, len(inv.NodeTypes))
	for t := range inv.NodeTypes {
		nodeTypes = append(nodeTypes, t)
	}

	nodeType, filter, err := o.Resources.SelectResource(ctx, requirements, nodeTypes)
	if err != nil {
		o.Log.Warn("Resource selection failed, using heuristic", "error", err)
		return selection.Heuristic{}.SelectResource(ctx, requirements, nodeTypes)
	}
	return nodeType, filter, nil
}

func (o *Orchestrator) selectImage(ctx context.Context, requirements selection.Requirements, req Request) (string, error) {
	if req.Image != "" {
		return req.Image, nil
	}

	images, err := o.Catalog.ListImageNames()
	if err != nil {
		return "", err
	}
	image, err := o.Images.SelectImage(ctx, requirements, images)
	if err != nil {
		o.Log.Warn("Image selection failed, using heuristic", "error", err)
		return selection.Heuristic{}.SelectImage(ctx, requirements, images)
	}
	return image, nil
}

// WriteResult persists the run artifact as `<server_name>_info.json`.
func WriteResult(dir string, result Result) error {
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_info.json", result.ServerName))
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fault.Wrap(fault.Backend, err, "failed to write %s", path)
	}
	return nil
}
