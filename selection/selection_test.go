package selection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envagent/envboot/fault"
)

func TestDecodeRequirementsDefensive(t *testing.T) {
	req, err := DecodeRequirements([]byte(`{
		"cpu_cores": "8",
		"ram_gb": 32,
		"gpu_required": "true",
		"gpu_memory_gb": null,
		"os_type": "centos",
		"special_requirements": ["infiniband"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 8, req.CPUCores)
	assert.Equal(t, 32, req.RAMGB)
	assert.True(t, req.GPURequired)
	assert.Zero(t, req.GPUMemoryGB)
	assert.Equal(t, "centos", req.OSType)
	assert.Equal(t, []string{"infiniband"}, req.SpecialRequirements)
}

func TestDecodeRequirementsDefaults(t *testing.T) {
	req, err := DecodeRequirements([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, req.CPUCores)
	assert.Equal(t, 4, req.RAMGB)
	assert.Equal(t, 20, req.DiskGB)
	assert.Equal(t, "ubuntu", req.OSType)
	assert.False(t, req.GPURequired)
}

func TestDecodeRequirementsRejectsNonObject(t *testing.T) {
	_, err := DecodeRequirements([]byte(`"not an object"`))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestDecodeRequirementsWrongTypesTolerated(t *testing.T) {
	req, err := DecodeRequirements([]byte(`{"cpu_cores": {"nested": true}, "os_type": 42}`))
	require.NoError(t, err)
	assert.Equal(t, 1, req.CPUCores)
	assert.Equal(t, "ubuntu", req.OSType)
}

func TestNodeTypeFilter(t *testing.T) {
	assert.Equal(t, `["=","$node_type","gpu_rtx_6000"]`, NodeTypeFilter("gpu_rtx_6000"))
}

func TestHeuristicAnalyze(t *testing.T) {
	req, err := Heuristic{}.Analyze(context.Background(), map[string]string{
		"requirements.txt": "torch==2.1\nnumpy",
	})
	require.NoError(t, err)
	assert.True(t, req.GPURequired)
	assert.False(t, req.CUDARequired)

	req, err = Heuristic{}.Analyze(context.Background(), map[string]string{
		"Dockerfile": "FROM nvidia/cuda:12.1-base",
	})
	require.NoError(t, err)
	assert.True(t, req.GPURequired)
	assert.True(t, req.CUDARequired)
}

func TestHeuristicSelectImage(t *testing.T) {
	images := []string{"CC-CentOS9-Stream", "CC-Ubuntu22.04", "CC-Ubuntu24.04"}

	img, err := Heuristic{}.SelectImage(context.Background(), Requirements{OSType: "ubuntu", OSVersion: "24.04"}, images)
	require.NoError(t, err)
	assert.Equal(t, "CC-Ubuntu24.04", img)

	img, err = Heuristic{}.SelectImage(context.Background(), Requirements{OSType: "centos"}, images)
	require.NoError(t, err)
	assert.Equal(t, "CC-CentOS9-Stream", img)

	img, err = Heuristic{}.SelectImage(context.Background(), Requirements{OSType: "fedora"}, images)
	require.NoError(t, err)
	assert.Equal(t, "CC-CentOS9-Stream", img)

	_, err = Heuristic{}.SelectImage(context.Background(), Requirements{}, nil)
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func TestHeuristicSelectResource(t *testing.T) {
	nodeTypes := []string{"compute_cascadelake", "gpu_rtx_6000", "storage"}

	nodeType, filter, err := Heuristic{}.SelectResource(context.Background(), Requirements{GPURequired: true}, nodeTypes)
	require.NoError(t, err)
	assert.Equal(t, "gpu_rtx_6000", nodeType)
	assert.Equal(t, `["=","$node_type","gpu_rtx_6000"]`, filter)

	nodeType, _, err = Heuristic{}.SelectResource(context.Background(), Requirements{}, nodeTypes)
	require.NoError(t, err)
	assert.Equal(t, "compute_cascadelake", nodeType)

	nodeType, _, err = Heuristic{}.SelectResource(context.Background(), Requirements{GPURequired: true}, []string{"storage"})
	require.NoError(t, err)
	assert.Equal(t, "storage", nodeType)
}

func TestAdviseDurationOrDefault(t *testing.T) {
	d := AdviseDurationOrDefault(context.Background(), nil, Requirements{})
	assert.Equal(t, DefaultDuration, d)

	d = AdviseDurationOrDefault(context.Background(), Heuristic{}, Requirements{GPURequired: true})
	assert.Equal(t, 48*time.Hour, d)

	d = AdviseDurationOrDefault(context.Background(), failingAdvisor{}, Requirements{})
	assert.Equal(t, DefaultDuration, d)
}

type failingAdvisor struct{}

func (failingAdvisor) AdviseDuration(ctx context.Context, req Requirements) (time.Duration, error) {
	return 0, fault.New(fault.Backend, "advisor unavailable")
}
