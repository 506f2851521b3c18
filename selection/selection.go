package selection

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/envagent/envboot/fault"
)

// Analyzer extracts hardware requirements from environment file contents,
// keyed by file name.
type Analyzer interface {
	Analyze(ctx context.Context, files map[string]string) (Requirements, error)
}

// ImageSelector picks an image name from the available list.
type ImageSelector interface {
	SelectImage(ctx context.Context, req Requirements, images []string) (string, error)
}

// ResourceSelector picks a node type and renders the matching reservation
// filter expression.
type ResourceSelector interface {
	SelectResource(ctx context.Context, req Requirements, nodeTypes []string) (nodeType, filter string, err error)
}

// DurationAdvisor suggests a lease duration for the requirements. Callers
// fall back to DefaultDuration when the advisor fails or returns nonsense.
type DurationAdvisor interface {
	AdviseDuration(ctx context.Context, req Requirements) (time.Duration, error)
}

// NodeTypeFilter renders the reservation backend's resource property
// expression matching one node type.
func NodeTypeFilter(nodeType string) string {
	expr, _ := json.Marshal([]string{"=", "$node_type", nodeType})
	return string(expr)
}

// AdviseDurationOrDefault calls the advisor and clamps unusable answers to
// the default.
func AdviseDurationOrDefault(ctx context.Context, advisor DurationAdvisor, req Requirements) time.Duration {
	if advisor == nil {
		return DefaultDuration
	}
	d, err := advisor.AdviseDuration(ctx, req)
	if err != nil || d <= 0 {
		return DefaultDuration
	}
	return d
}

// Heuristic is the deterministic selector used when no AI endpoint is
// configured. It also backs every interface as the fallback of last resort.
type Heuristic struct{}

var (
	_ Analyzer         = Heuristic{}
	_ ImageSelector    = Heuristic{}
	_ ResourceSelector = Heuristic{}
	_ DurationAdvisor  = Heuristic{}
)

// Analyze scans environment files for GPU and OS markers.
func (Heuristic) Analyze(ctx context.Context, files map[string]string) (Requirements, error) {
	req := Requirements{CPUCores: 1, RAMGB: 4, DiskGB: 20, OSType: "ubuntu"}

	for _, content := range files {
		lower := strings.ToLower(content)
		if strings.Contains(lower, "cuda") || strings.Contains(lower, "nvidia") ||
			strings.Contains(lower, "torch") || strings.Contains(lower, "tensorflow") {
			req.GPURequired = true
		}
		if strings.Contains(lower, "cuda") {
			req.CUDARequired = true
		}
		if strings.Contains(lower, "centos") {
			req.OSType = "centos"
		}
	}
	return req, nil
}

// SelectImage prefers an image matching the OS type and version, then the OS
// type alone, then the first image offered.
func (Heuristic) SelectImage(ctx context.Context, req Requirements, images []string) (string, error) {
	if len(images) == 0 {
		return "", fault.New(fault.NotFound, "no images available to select from")
	}

	osType := strings.ToLower(req.OSType)
	if withVersion, ok := lo.Find(images, func(img string) bool {
		lower := strings.ToLower(img)
		return strings.Contains(lower, osType) && req.OSVersion != "" && strings.Contains(lower, req.OSVersion)
	}); ok {
		return withVersion, nil
	}
	if byType, ok := lo.Find(images, func(img string) bool {
		return strings.Contains(strings.ToLower(img), osType)
	}); ok {
		return byType, nil
	}
	return images[0], nil
}

// SelectResource picks a gpu node type when the requirements call for one,
// otherwise a compute type. The first offered type is the fallback.
func (Heuristic) SelectResource(ctx context.Context, req Requirements, nodeTypes []string) (string, string, error) {
	if len(nodeTypes) == 0 {
		return "", "", fault.New(fault.NotFound, "no node types available to select from")
	}

	want := "compute"
	if req.GPURequired {
		want = "gpu"
	}
	nodeType, ok := lo.Find(nodeTypes, func(t string) bool {
		return strings.Contains(strings.ToLower(t), want)
	})
	if !ok {
		nodeType = nodeTypes[0]
	}
	return nodeType, NodeTypeFilter(nodeType), nil
}

// AdviseDuration scales with the weight of the requirements: GPU work gets a
// longer default window.
func (Heuristic) AdviseDuration(ctx context.Context, req Requirements) (time.Duration, error) {
	if req.GPURequired {
		return 48 * time.Hour, nil
	}
	return DefaultDuration, nil
}
