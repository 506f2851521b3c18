// Package selection turns repository contents into hardware requirements and
// picks images, node types and lease durations to satisfy them. The AI-backed
// implementations are optional; a deterministic heuristic covers every
// interface when no endpoint is configured.
package selection

import (
	"encoding/json"
	"time"

	"github.com/envagent/envboot/fault"
)

// DefaultDuration is the lease length used when no advisor produces a usable
// answer.
const DefaultDuration = 24 * time.Hour

// Requirements is the structured hardware profile extracted from a
// repository's environment files.
type Requirements struct {
	CPUCores            int      `json:"cpu_cores"`
	RAMGB               int      `json:"ram_gb"`
	GPURequired         bool     `json:"gpu_required"`
	GPUMemoryGB         int      `json:"gpu_memory_gb"`
	DiskGB              int      `json:"disk_gb"`
	OSType              string   `json:"os_type"`
	OSVersion           string   `json:"os_version"`
	CUDARequired        bool     `json:"cuda_required"`
	PythonVersion       string   `json:"python_version"`
	SpecialRequirements []string `json:"special_requirements"`
}

// DecodeRequirements parses a requirements document produced by an external
// collaborator. The input is untrusted: wrong types, nulls and missing fields
// are tolerated field by field, and absent values fall back to the defaults.
func DecodeRequirements(data []byte) (Requirements, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Requirements{}, fault.Wrap(fault.Validation, err, "requirements document is not a JSON object")
	}

	req := Requirements{
		CPUCores: 1,
		RAMGB:    4,
		DiskGB:   20,
		OSType:   "ubuntu",
	}
	decodeInt(raw, "cpu_cores", &req.CPUCores)
	decodeInt(raw, "ram_gb", &req.RAMGB)
	decodeInt(raw, "gpu_memory_gb", &req.GPUMemoryGB)
	decodeInt(raw, "disk_gb", &req.DiskGB)
	decodeBool(raw, "gpu_required", &req.GPURequired)
	decodeBool(raw, "cuda_required", &req.CUDARequired)
	decodeString(raw, "os_type", &req.OSType)
	decodeString(raw, "os_version", &req.OSVersion)
	decodeString(raw, "python_version", &req.PythonVersion)
	decodeStrings(raw, "special_requirements", &req.SpecialRequirements)

	if req.CPUCores < 1 {
		req.CPUCores = 1
	}
	if req.RAMGB < 1 {
		req.RAMGB = 4
	}
	return req, nil
}

func decodeInt(raw map[string]json.RawMessage, key string, dst *int) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	var n int
	if err := json.Unmarshal(msg, &n); err == nil {
		*dst = n
		return
	}
	// Some collaborators quote their numbers.
	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		*dst = int(f)
		return
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		if n, ok := atoiStrict(s); ok {
			*dst = n
		}
	}
}

func atoiStrict(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func decodeBool(raw map[string]json.RawMessage, key string, dst *bool) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	var b bool
	if err := json.Unmarshal(msg, &b); err == nil {
		*dst = b
		return
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		*dst = s == "true" || s == "True" || s == "yes"
	}
}

func decodeString(raw map[string]json.RawMessage, key string, dst *string) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil && s != "" {
		*dst = s
	}
}

func decodeStrings(raw map[string]json.RawMessage, key string, dst *[]string) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	var list []string
	if err := json.Unmarshal(msg, &list); err == nil {
		*dst = list
	}
}
