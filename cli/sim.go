package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/compute"
)

// Dry-run identifiers are deterministic functions of their inputs so that
// callers can script against them.
const (
	simLeasePrefix   = "sim-lease-"
	simTimestampWire = "20060102150405"
	simNodeCount     = 5
)

func simLeaseID(now time.Time) string {
	return simLeasePrefix + now.UTC().Format(simTimestampWire)
}

// simLeaseStatus replays the lease state machine against the timestamp baked
// into a simulated lease id: PENDING for the first 10 seconds, ACTIVE for the
// first hour, COMPLETE afterwards. Ids without a readable timestamp are
// UNKNOWN.
func simLeaseStatus(id string, now time.Time) blazar.Status {
	raw, ok := strings.CutPrefix(id, simLeasePrefix)
	if !ok {
		return blazar.StatusUnknown
	}
	created, err := time.Parse(simTimestampWire, raw)
	if err != nil {
		return blazar.StatusUnknown
	}

	age := now.UTC().Sub(created)
	switch {
	case age < 10*time.Second:
		return blazar.StatusPending
	case age < time.Hour:
		return blazar.StatusActive
	default:
		return blazar.StatusComplete
	}
}

type simServer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	FixedIP    string `json:"fixed_ip"`
	FloatingIP string `json:"floating_ip"`
}

// simServers fabricates the deterministic server set the launch tool reports
// in dry-run mode.
func simServers(namePrefix string, count int, floating bool) []simServer {
	servers := make([]simServer, 0, count)
	for i := 0; i < count; i++ {
		s := simServer{
			ID:      fmt.Sprintf("fake-%d", i+1),
			Name:    compute.ServerName(namePrefix, i, count),
			Status:  "ACTIVE",
			FixedIP: fmt.Sprintf("10.0.0.%d", 100+i),
		}
		if floating {
			s.FloatingIP = fmt.Sprintf("203.0.113.%d", 10+i)
		}
		servers = append(servers, s)
	}
	return servers
}
