package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/envagent/envboot/blazar"
)

func TestSimLeaseIDIsDeterministic(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "sim-lease-20250101100000", simLeaseID(now))
}

func TestSimLeaseStatusStateMachine(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	id := simLeaseID(created)

	tests := []struct {
		name string
		at   time.Time
		want blazar.Status
	}{
		{"just created", created.Add(time.Second), blazar.StatusPending},
		{"after ten seconds", created.Add(11 * time.Second), blazar.StatusActive},
		{"within the hour", created.Add(59 * time.Minute), blazar.StatusActive},
		{"after an hour", created.Add(2 * time.Hour), blazar.StatusComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, simLeaseStatus(id, tt.at))
		})
	}
}

func TestSimLeaseStatusUnknown(t *testing.T) {
	now := time.Now()
	assert.Equal(t, blazar.StatusUnknown, simLeaseStatus("real-lease-uuid", now))
	assert.Equal(t, blazar.StatusUnknown, simLeaseStatus("sim-lease-notatimestamp", now))
}

func TestSimServers(t *testing.T) {
	servers := simServers("node", 2, true)

	assert.Len(t, servers, 2)
	assert.Equal(t, "fake-1", servers[0].ID)
	assert.Equal(t, "node-1", servers[0].Name)
	assert.Equal(t, "10.0.0.100", servers[0].FixedIP)
	assert.Equal(t, "203.0.113.10", servers[0].FloatingIP)
	assert.Equal(t, "fake-2", servers[1].ID)
	assert.Equal(t, "node-2", servers[1].Name)
	assert.Equal(t, "10.0.0.101", servers[1].FixedIP)
	assert.Equal(t, "203.0.113.11", servers[1].FloatingIP)
}

func TestSimServersSingleKeepsBareName(t *testing.T) {
	servers := simServers("node", 1, false)

	assert.Equal(t, "node", servers[0].Name)
	assert.Empty(t, servers[0].FloatingIP)
}
