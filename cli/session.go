package main

import (
	"github.com/spf13/viper"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/cli/flags"
	"github.com/envagent/envboot/cli/log"
	"github.com/envagent/envboot/compute"
	"github.com/envagent/envboot/discovery"
	"github.com/envagent/envboot/internal/timeparse"
	"github.com/envagent/envboot/keys"
	"github.com/envagent/envboot/lease"
	"github.com/envagent/envboot/network"
	"github.com/envagent/envboot/openstack"
	"github.com/envagent/envboot/selection"
)

func dryRun() bool {
	return viper.GetBool(flags.DryRun)
}

// newSession authenticates against the zone selected on the command line,
// falling back to OS_REGION_NAME.
func newSession() (*openstack.Session, error) {
	if zone := viper.GetString(flags.Zone); zone != "" {
		return openstack.NewSessionForRegion(zone)
	}
	return openstack.NewSession()
}

func leaseBackend(session *openstack.Session) lease.Backend {
	return &lease.Client{Service: session.Reservation}
}

func leaseController(session *openstack.Session) *lease.Controller {
	return lease.NewController(&lease.Client{Service: session.Reservation}, log.Base, nil)
}

func leaseDeleter(session *openstack.Session) *lease.Deleter {
	return lease.NewDeleter(&lease.Client{Service: session.Reservation}, log.Base, nil)
}

func serverController(session *openstack.Session) *compute.Controller {
	return compute.NewController(&compute.Client{Compute: session.Compute}, session, log.Base, nil)
}

func bareMetalClient(session *openstack.Session) *compute.BareMetalClient {
	return &compute.BareMetalClient{BareMetal: session.BareMetal, Network: session.Network}
}

func networkManager(session *openstack.Session) *network.Manager {
	return network.NewManager(&network.Client{Compute: session.Compute, Network: session.Network}, log.Base)
}

func discoveryService(session *openstack.Session) *discovery.Service {
	return discovery.NewService(&discovery.Client{Service: session.Reservation}, log.Base)
}

func keyManager(session *openstack.Session) *keys.Manager {
	return keys.NewManager(&keys.Client{Compute: session.Compute}, log.Base)
}

// selectors returns the AI-backed implementations when an endpoint is
// configured, the deterministic heuristic otherwise.
func selectors() (selection.Analyzer, selection.ImageSelector, selection.ResourceSelector, selection.DurationAdvisor) {
	config := selection.AIConfig{
		BaseURL: viper.GetString(flags.AIBaseURL),
		APIKey:  viper.GetString(flags.AIAPIKey),
		Model:   viper.GetString(flags.AIModel),
	}
	if config.Configured() {
		client := selection.NewAIClient(config)
		return client, client, client, client
	}
	heuristic := selection.Heuristic{}
	return heuristic, heuristic, heuristic, heuristic
}

// statusPayload is the lease representation shared by status-bearing tools.
type statusPayload struct {
	LeaseID       string `json:"lease_id"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status"`
	Start         string `json:"start,omitempty"`
	End           string `json:"end,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

func leasePayload(l *blazar.Lease) statusPayload {
	p := statusPayload{
		LeaseID: l.ID,
		Name:    l.Name,
		Status:  string(l.Status),
	}
	if !l.StartDate.IsZero() {
		p.Start = l.StartDate.UTC().Format(timeparse.ISO)
	}
	if !l.EndDate.IsZero() {
		p.End = l.EndDate.UTC().Format(timeparse.ISO)
	}
	if len(l.Reservations) > 0 {
		p.ReservationID = l.Reservations[0].ID
	}
	return p
}
