package main

import (
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/envagent/envboot/cli/log"
	"github.com/envagent/envboot/cli/ui"
	"github.com/envagent/envboot/internal/timeparse"
	"github.com/envagent/envboot/namegen"
	"github.com/envagent/envboot/openstack"
	"github.com/envagent/envboot/provision"
	"github.com/envagent/envboot/selection"
)

type provisionData struct {
	provision.Result
	DryRun bool `json:"dry_run,omitempty"`
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision a server sized for a repository, end to end",
	Long: `Provision analyzes a repository, reserves a matching bare-metal node,
boots a server bound to the reservation, and records the connection details
in <server-name>_info.json.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		out := cmd.OutOrStdout()

		repoURL := lo.Must(cmd.Flags().GetString("repo"))
		serverName := lo.Must(cmd.Flags().GetString("server-name"))
		profilePath := lo.Must(cmd.Flags().GetString("profile"))

		req := provision.Request{
			RepoURL:    repoURL,
			RepoBranch: lo.Must(cmd.Flags().GetString("branch")),
			WorkDir:    lo.Must(cmd.Flags().GetString("workdir")),

			LeaseName:  lo.Must(cmd.Flags().GetString("lease-name")),
			ServerName: serverName,
			OutputDir:  lo.Must(cmd.Flags().GetString("output-dir")),

			NodeType: lo.Must(cmd.Flags().GetString("node-type")),
			Image:    lo.Must(cmd.Flags().GetString("image")),
			Network:  lo.Must(cmd.Flags().GetString("network")),
			KeyName:  lo.Must(cmd.Flags().GetString("key-name")),
			Duration: lo.Must(cmd.Flags().GetDuration("duration")),

			PublicKeyPath: lo.Must(cmd.Flags().GetString("public-key")),
			FloatingIP:    !lo.Must(cmd.Flags().GetBool("no-floating-ip")),
		}

		if profilePath != "" {
			profile, err := selection.LoadProfile(profilePath)
			if err != nil {
				return emit(out, nil, err, started)
			}
			applyProfile(&req, profile)
		}
		if req.ServerName == "" {
			req.ServerName = namegen.Prefixed("envboot")
		}

		if dryRun() {
			now := time.Now().UTC()
			result := provision.Result{
				ServerName:    req.ServerName,
				ServerID:      "fake-1",
				LeaseID:       simLeaseID(now),
				ReservationID: "sim-reservation-" + now.Format(simTimestampWire),
				FixedIP:       "10.0.0.100",
				Image:         req.Image,
				NodeType:      req.NodeType,
				KeyName:       req.KeyName,
				LeaseEnd:      now.Add(24 * time.Hour),
			}
			if req.FloatingIP {
				result.FloatingIP = lo.ToPtr("203.0.113.10")
			}
			return emit(out, provisionData{Result: result, DryRun: true}, nil, started)
		}

		var (
			session *openstack.Session
			err     error
		)
		if site := lo.Must(cmd.Flags().GetString("site")); site != "" {
			session, err = openstack.NewSessionForRegion(site)
		} else {
			session, err = newSession()
		}
		if err != nil {
			return emit(out, nil, err, started)
		}

		spin := ui.NewSpinner("Provisioning " + req.ServerName)

		analyzer, images, resources, durations := selectors()
		orchestrator := &provision.Orchestrator{
			Leases:    leaseController(session),
			Servers:   serverController(session),
			Floating:  networkManager(session),
			Keys:      keyManager(session),
			Catalog:   session,
			Inventory: discoveryService(session),

			Analyzer:  analyzer,
			Images:    images,
			Resources: resources,
			Durations: durations,

			Log:      log.Base,
			Progress: func(stage string) { spin.UpdateMessage(stage) },
		}

		result, err := orchestrator.Run(cmd.Context(), req)
		if err != nil {
			spin.Fail("Provisioning failed")
			return emit(out, nil, err, started)
		}
		spin.Success("Server " + result.ServerName + " ready, lease ends " + result.LeaseEnd.UTC().Format(timeparse.ISO))

		return emit(out, provisionData{Result: result}, nil, started)
	},
}

// applyProfile fills request fields the command line left empty.
func applyProfile(req *provision.Request, profile selection.Profile) {
	if req.NodeType == "" {
		req.NodeType = profile.NodeType
	}
	if req.Image == "" {
		req.Image = profile.Image
	}
	if req.Network == "" {
		req.Network = profile.Network
	}
	if req.KeyName == "" {
		req.KeyName = profile.KeyName
	}
	if req.Duration == 0 && profile.DurationMinutes > 0 {
		req.Duration = time.Duration(profile.DurationMinutes) * time.Minute
	}
	if profile.FloatingIP != nil {
		req.FloatingIP = *profile.FloatingIP
	}
}

func init() {
	provisionCmd.Flags().String("repo", "", "repository to analyze and deploy")
	provisionCmd.Flags().String("branch", "", "branch to check out")
	provisionCmd.Flags().String("workdir", "", "scratch directory for the clone")
	provisionCmd.Flags().String("server-name", "", "name for the provisioned server")
	provisionCmd.Flags().String("lease-name", "", "lease name (defaults to <server-name>-lease)")
	provisionCmd.Flags().String("output-dir", ".", "directory for the result file")
	provisionCmd.Flags().String("site", "", "site/region override for this run")
	provisionCmd.Flags().String("node-type", "", "node type override")
	provisionCmd.Flags().String("image", "", "image override")
	provisionCmd.Flags().String("network", "", "network override")
	provisionCmd.Flags().String("key-name", "", "keypair override")
	provisionCmd.Flags().Duration("duration", 0, "lease duration override")
	provisionCmd.Flags().String("public-key", "", "public key file to import")
	provisionCmd.Flags().Bool("no-floating-ip", false, "skip floating IP attachment")
	provisionCmd.Flags().String("profile", "", "YAML profile supplying defaults")
}
