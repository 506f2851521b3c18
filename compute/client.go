package compute

import (
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/schedulerhints"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"

	"github.com/envagent/envboot/fault"
)

// Client is the gophercloud-backed Backend implementation.
type Client struct {
	Compute *gophercloud.ServiceClient
}

var _ Backend = (*Client)(nil)

func (c *Client) CreateServer(req ServerRequest) (Server, error) {
	var base servers.CreateOptsBuilder = servers.CreateOpts{
		Name:           req.Name,
		ImageRef:       req.ImageID,
		FlavorRef:      req.FlavorID,
		Networks:       []servers.Network{{UUID: req.NetworkID}},
		SecurityGroups: req.SecurityGroups,
		UserData:       req.UserData,
	}
	if req.KeyName != "" {
		base = keypairs.CreateOptsExt{CreateOptsBuilder: base, KeyName: req.KeyName}
	}
	if len(req.SchedulerHints) > 0 {
		base = schedulerhints.CreateOptsExt{
			CreateOptsBuilder: base,
			SchedulerHints:    schedulerhints.SchedulerHints{AdditionalProperties: req.SchedulerHints},
		}
	}

	created, err := servers.Create(c.Compute, base).Extract()
	if err != nil {
		return Server{}, fault.FromBackend(err)
	}
	return fromGopherServer(created), nil
}

func (c *Client) GetServer(id string) (Server, error) {
	got, err := servers.Get(c.Compute, id).Extract()
	if err != nil {
		return Server{}, fault.FromBackend(err)
	}
	return fromGopherServer(got), nil
}

func fromGopherServer(s *servers.Server) Server {
	out := Server{
		ID:      s.ID,
		Name:    s.Name,
		Status:  Status(s.Status),
		KeyName: s.KeyName,
	}
	out.FixedIP, out.FloatingIP = extractAddresses(s.Addresses)
	return out
}

// extractAddresses walks the Nova address map and picks the first fixed and
// floating IPv4 address across all networks. Entries without the
// OS-EXT-IPS:type attribute are treated as fixed.
func extractAddresses(addresses map[string]interface{}) (fixed, floating string) {
	for _, entry := range addresses {
		list, ok := entry.([]interface{})
		if !ok {
			continue
		}
		for _, item := range list {
			attrs, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			addr, _ := attrs["addr"].(string)
			if addr == "" {
				continue
			}
			if version, ok := attrs["version"].(float64); ok && int(version) != 4 {
				continue
			}
			kind, _ := attrs["OS-EXT-IPS:type"].(string)
			switch kind {
			case "floating":
				if floating == "" {
					floating = addr
				}
			default:
				if fixed == "" {
					fixed = addr
				}
			}
		}
	}
	return fixed, floating
}
