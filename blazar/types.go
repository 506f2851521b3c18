package blazar

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/envagent/envboot/internal/timeparse"
)

// Resource types a reservation can carry. Fixed at lease creation.
const (
	ResourceTypePhysicalHost    = "physical:host"
	ResourceTypeVirtualInstance = "virtual:instance"
)

// Status is the lease lifecycle state as reported by the backend. The
// controller only observes transitions; it never forces them except via an
// explicit delete.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusActive     Status = "ACTIVE"
	StatusError      Status = "ERROR"
	StatusComplete   Status = "COMPLETE"
	StatusTerminated Status = "TERMINATED"
	StatusUnknown    Status = "UNKNOWN"
)

// ParseStatus maps a backend status string onto the known vocabulary,
// returning UNKNOWN for anything unrecognized.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusActive, StatusError, StatusComplete, StatusTerminated:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the status is one the backend will not leave on
// its own.
func (s Status) Terminal() bool {
	switch s {
	case StatusError, StatusComplete, StatusTerminated:
		return true
	}
	return false
}

// Time wraps time.Time to decode the several wire layouts Blazar emits.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := timeparse.Parse(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(timeparse.ISO))
}

// Lease is a time-boxed hardware/VM reservation. It has exactly the
// reservations it was created with.
type Lease struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Status       Status        `json:"-"`
	StartDate    Time          `json:"start_date"`
	EndDate      Time          `json:"end_date"`
	Reservations []Reservation `json:"reservations"`
	CreatedAt    Time          `json:"created_at"`
	UpdatedAt    Time          `json:"updated_at"`
}

func (l *Lease) UnmarshalJSON(data []byte) error {
	type alias Lease
	var wire struct {
		alias
		RawStatus string `json:"status"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*l = Lease(wire.alias)
	l.Status = ParseStatus(wire.RawStatus)
	return nil
}

func (l Lease) MarshalJSON() ([]byte, error) {
	type alias Lease
	return json.Marshal(struct {
		alias
		RawStatus string `json:"status"`
	}{alias(l), string(l.Status)})
}

// Reservation is the concrete resource allocation record embedded in a lease.
// ResourceID stays empty until the lease reaches ACTIVE.
type Reservation struct {
	ID           string `json:"id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Status       string `json:"status"`
	Min          int    `json:"min"`
	Max          int    `json:"max"`
}

// Host is a reservable physical host. The adapter declares the exact field
// set it extracts from the backend's response and fails loudly when a
// required field is absent, rather than silently omitting it.
type Host struct {
	ID                 string
	HypervisorHostname string
	NodeName           string
	NodeType           string
	Reservable         bool
	VCPUs              int
	MemoryMB           int
	LocalGB            int
	GPUModel           string
	Architecture       string
}

func (h *Host) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := hostString(raw, "id", true)
	if err != nil {
		return err
	}
	nodeType, err := hostString(raw, "node_type", true)
	if err != nil {
		return err
	}

	h.ID = id
	h.NodeType = nodeType
	h.HypervisorHostname, _ = hostString(raw, "hypervisor_hostname", false)
	h.NodeName, _ = hostString(raw, "node_name", false)
	h.GPUModel, _ = hostString(raw, "gpu.gpu_model", false)
	h.Architecture, _ = hostString(raw, "architecture.platform_type", false)
	h.Reservable = hostBool(raw, "reservable")
	h.VCPUs = hostInt(raw, "vcpus")
	h.MemoryMB = hostInt(raw, "memory_mb")
	h.LocalGB = hostInt(raw, "local_gb")
	return nil
}

func hostString(raw map[string]json.RawMessage, key string, required bool) (string, error) {
	msg, ok := raw[key]
	if !ok {
		if required {
			return "", fmt.Errorf("host record is missing required field %q", key)
		}
		return "", nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s, nil
	}
	// Numeric ids show up unquoted in some deployments.
	var n json.Number
	if err := json.Unmarshal(msg, &n); err == nil {
		return n.String(), nil
	}
	if required {
		return "", fmt.Errorf("host field %q has unexpected type: %s", key, msg)
	}
	return "", nil
}

// The backend reports reservable either as a bool or as the strings
// "True"/"False".
func hostBool(raw map[string]json.RawMessage, key string) bool {
	msg, ok := raw[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(msg, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s == "True" || s == "true"
	}
	return false
}

func hostInt(raw map[string]json.RawMessage, key string) int {
	msg, ok := raw[key]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(msg, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		var parsed int
		if _, err := fmt.Sscanf(s, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return 0
}

// Allocation maps a reservable host to the reservations claiming it.
type Allocation struct {
	ResourceID   string                  `json:"resource_id"`
	Reservations []AllocationReservation `json:"reservations"`
}

// AllocationReservation is the time-window entry inside an allocation.
type AllocationReservation struct {
	ID        string `json:"id"`
	LeaseID   string `json:"lease_id"`
	StartDate Time   `json:"start_date"`
	EndDate   Time   `json:"end_date"`
}
