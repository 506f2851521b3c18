package main

import (
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/envagent/envboot/cli/flags"
	"github.com/envagent/envboot/cli/log"
	"github.com/envagent/envboot/compute"
	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/network"
	"github.com/envagent/envboot/openstack"
)

type launchServer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	FixedIP    string `json:"fixed_ip,omitempty"`
	FloatingIP string `json:"floating_ip,omitempty"`
	SSHUser    string `json:"ssh_user,omitempty"`
}

type launchData struct {
	ReservationID string         `json:"reservation_id"`
	Servers       []launchServer `json:"servers"`
	Wait          *waitData      `json:"wait,omitempty"`
	DryRun        bool           `json:"dry_run,omitempty"`
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Boot servers bound to an active lease",

	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		out := cmd.OutOrStdout()

		leaseID := lo.Must(cmd.Flags().GetString("reservation-id"))
		image := lo.Must(cmd.Flags().GetString("image"))
		flavor := lo.Must(cmd.Flags().GetString("flavor"))
		networkRef := lo.Must(cmd.Flags().GetString("network"))
		keyName := lo.Must(cmd.Flags().GetString("key-name"))
		secGroups := lo.Must(cmd.Flags().GetStringSlice("sec-groups"))
		count := lo.Must(cmd.Flags().GetInt("count"))
		namePrefix := lo.Must(cmd.Flags().GetString("name-prefix"))
		userdataPath := lo.Must(cmd.Flags().GetString("userdata"))
		assignFIP := lo.Must(cmd.Flags().GetBool("assign-floating-ip"))
		wait := lo.Must(cmd.Flags().GetDuration("wait"))
		interval := lo.Must(cmd.Flags().GetDuration("interval"))

		bareMetal := compute.BareMetalOptions{
			ForceIronic: lo.Must(cmd.Flags().GetBool("force-ironic")),
			Image:       lo.Must(cmd.Flags().GetString("bm-image")),
			SSHUser:     lo.Must(cmd.Flags().GetString("bm-ssh-user")),
		}

		if count < 1 {
			return emit(out, nil, fault.New(fault.Validation, "server count must be at least 1"), started)
		}
		if bareMetal.Image == "" {
			bareMetal.Image = image
		}

		if dryRun() {
			sim := simServers(namePrefix, count, assignFIP)
			servers := make([]launchServer, len(sim))
			for i, s := range sim {
				servers[i] = launchServer{
					ID: s.ID, Name: s.Name, Status: s.Status,
					FixedIP: s.FixedIP, FloatingIP: s.FloatingIP,
					SSHUser: compute.SSHUserForImage(image),
				}
			}
			return emit(out, launchData{
				ReservationID: leaseID,
				Servers:       servers,
				Wait:          &waitData{},
				DryRun:        true,
			}, nil, started)
		}

		var userdata []byte
		if userdataPath != "" {
			raw, err := os.ReadFile(userdataPath)
			if err != nil {
				return emit(out, nil, fault.Wrap(fault.Validation, err, "cannot read userdata %s", userdataPath), started)
			}
			userdata = raw
		}

		session, err := newSession()
		if err != nil {
			return emit(out, nil, err, started)
		}

		leases := leaseController(session)
		active, err := leaseBackend(session).GetLease(leaseID)
		if err != nil {
			return emit(out, nil, fault.FromBackend(err), started)
		}
		reservationID, err := leases.ReservationID(active)
		if err != nil {
			return emit(out, nil, err, started)
		}
		nodeIDs := leases.ResourceIDs(active)

		servers := serverController(session)
		booted, bootErr := servers.Boot(cmd.Context(), compute.BootSpec{
			ReservationID:  reservationID,
			NodeIDs:        nodeIDs,
			Image:          image,
			Flavor:         flavor,
			Network:        networkRef,
			KeyName:        keyName,
			SecurityGroups: secGroups,
			Count:          count,
			NamePrefix:     namePrefix,
			UserData:       userdata,
			BareMetal:      bareMetal,
		})
		if bootErr != nil && len(booted) == 0 {
			return emit(out, nil, bootErr, started)
		}

		data := launchData{ReservationID: reservationID}
		var waitErr error
		if wait > 0 {
			ready, stats, err := servers.WaitForActive(cmd.Context(), booted, wait, interval)
			booted = ready
			waitErr = err
			data.Wait = &waitData{PollCount: stats.Polls, ElapsedMS: stats.Elapsed.Milliseconds()}
		}

		portIDs := make([]string, len(booted))
		if bareMetal.ForceIronic && len(nodeIDs) > 0 {
			activateTimeout := wait
			if activateTimeout <= 0 {
				activateTimeout = 20 * time.Minute
			}
			activateNodes(cmd, session, nodeIDs, bareMetal, activateTimeout, interval)
			bm := bareMetalClient(session)
			for i := range booted {
				if i >= len(nodeIDs) {
					break
				}
				port, err := compute.PortForNode(bm, bm, nodeIDs[i])
				if err != nil {
					log.Warn("No network port found for node", "node", nodeIDs[i], "error", err)
					continue
				}
				portIDs[i] = port.ID
				if booted[i].FixedIP == "" {
					booted[i].FixedIP = port.FixedIPs[0]
				}
			}
		}

		sshUser := bareMetal.SSHUser
		if sshUser == "" {
			sshUser = compute.SSHUserForImage(image)
		}
		for _, s := range booted {
			entry := launchServer{
				ID: s.ID, Name: s.Name, Status: string(s.Status),
				FixedIP: s.FixedIP, FloatingIP: s.FloatingIP,
				SSHUser: sshUser,
			}
			data.Servers = append(data.Servers, entry)
		}

		if assignFIP && waitErr == nil && bootErr == nil {
			manager := networkManager(session)
			for i := range data.Servers {
				if data.Servers[i].Status != string(compute.StatusActive) {
					continue
				}
				// Bare-metal servers attach through their Neutron port;
				// virtual instances go through the compute API.
				attached, err := manager.EnsureFloatingIP(network.Target{
					ServerID: data.Servers[i].ID,
					PortID:   portIDs[i],
					Existing: data.Servers[i].FloatingIP,
				})
				if err != nil {
					return emit(out, data, err, started)
				}
				data.Servers[i].FloatingIP = attached.Address
			}
		}

		switch {
		case bootErr != nil:
			return emit(out, data, bootErr, started)
		case waitErr != nil:
			return emit(out, data, waitErr, started)
		case compute.AnyError(booted):
			return emit(out, data, fault.New(fault.Server, "one or more servers entered ERROR state"), started)
		default:
			return emit(out, data, nil, started)
		}
	},
}

// activateNodes drives the Ironic provisioning protocol for each allocated
// node. Failures are logged; the server-level status already reflects them.
func activateNodes(cmd *cobra.Command, session *openstack.Session, nodeIDs []string, opts compute.BareMetalOptions, wait, interval time.Duration) {
	bm := bareMetalClient(session)
	imageID, err := session.ResolveImage(opts.Image)
	if err != nil {
		imageID = opts.Image
	}
	for _, nodeID := range nodeIDs {
		status, err := compute.ActivateNode(cmd.Context(), bm, nil, log.Base, nodeID, imageID, wait, interval)
		if err != nil {
			log.Warn("Bare-metal activation failed", "node", nodeID, "status", status, "error", err)
		}
	}
}

func init() {
	launchCmd.Flags().String("reservation-id", "", "lease id whose reservation backs the servers")
	launchCmd.Flags().String("image", "", "image name or id")
	launchCmd.Flags().String("flavor", "baremetal", "flavor name or id")
	launchCmd.Flags().String("network", "", "network name or id")
	launchCmd.Flags().String("key-name", "", "keypair for SSH access")
	launchCmd.Flags().StringSlice("sec-groups", nil, "security groups for the servers")
	launchCmd.Flags().Int("count", 1, "number of servers to boot")
	launchCmd.Flags().String("name-prefix", "server", "server name or name prefix")
	launchCmd.Flags().String("userdata", "", "cloud-init userdata file")
	launchCmd.Flags().Bool("assign-floating-ip", false, "attach a floating IP to each active server")
	launchCmd.Flags().Duration("wait", 0, "wait for the servers to become active")
	launchCmd.Flags().Duration("interval", flags.LaunchPollInterval, "poll interval while waiting")

	launchCmd.Flags().Bool("force-ironic", false, "drive provisioning through the bare-metal API")
	launchCmd.Flags().String("bm-image", "", "image for bare-metal provisioning (defaults to --image)")
	launchCmd.Flags().String("bm-ssh-user", "", "SSH user on bare-metal nodes")

	lo.Must0(launchCmd.MarkFlagRequired("reservation-id"))
	lo.Must0(launchCmd.MarkFlagRequired("image"))
	lo.Must0(launchCmd.MarkFlagRequired("network"))
}
