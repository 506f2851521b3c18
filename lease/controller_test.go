package lease

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/internal/poll"
)

// --- Mock backend ---

type mockBackend struct {
	createFunc func(opts blazar.CreateOpts) (*blazar.Lease, error)
	getFunc    func(id string) (*blazar.Lease, error)
	deleteFunc func(id string) error

	gets    int
	deletes int
}

func (m *mockBackend) CreateLease(opts blazar.CreateOpts) (*blazar.Lease, error) {
	if m.createFunc == nil {
		return nil, errors.New("unexpected CreateLease")
	}
	return m.createFunc(opts)
}

func (m *mockBackend) GetLease(id string) (*blazar.Lease, error) {
	m.gets++
	if m.getFunc == nil {
		return nil, errors.New("unexpected GetLease")
	}
	return m.getFunc(id)
}

func (m *mockBackend) DeleteLease(id string) error {
	m.deletes++
	if m.deleteFunc == nil {
		return errors.New("unexpected DeleteLease")
	}
	return m.deleteFunc(id)
}

// --- Fake clock ---

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Create ---

func TestCreateValidation(t *testing.T) {
	clock := newFakeClock()
	controller := NewController(&mockBackend{}, testLogger(), clock)
	start := clock.Now().Add(time.Hour)
	end := start.Add(24 * time.Hour)

	for name, spec := range map[string]CreateSpec{
		"zero min":        {Name: "l", Start: start, End: end, MinCount: 0, MaxCount: 1},
		"zero max":        {Name: "l", Start: start, End: end, MinCount: 1, MaxCount: 0},
		"min above max":   {Name: "l", Start: start, End: end, MinCount: 3, MaxCount: 2},
		"start after end": {Name: "l", Start: end, End: start, MinCount: 1, MaxCount: 1},
		"start in past":   {Name: "l", Start: clock.Now().Add(-time.Hour), End: end, MinCount: 1, MaxCount: 1},
		"missing name":    {Start: start, End: end, MinCount: 1, MaxCount: 1},
		"too long":        {Name: "l", Start: start, End: start.Add(100000 * time.Minute), MinCount: 1, MaxCount: 1},
		"sub-minute":      {Name: "l", Start: start, End: start.Add(30 * time.Second), MinCount: 1, MaxCount: 1},
	} {
		_, err := controller.Create(spec)
		require.Error(t, err, name)
		assert.Equal(t, fault.Validation, fault.KindOf(err), name)
	}
}

func TestCreatePassesFilterAndDefaultsResourceType(t *testing.T) {
	clock := newFakeClock()
	var captured blazar.CreateOpts
	backend := &mockBackend{
		createFunc: func(opts blazar.CreateOpts) (*blazar.Lease, error) {
			captured = opts
			return &blazar.Lease{ID: "lease-1", Status: blazar.StatusPending}, nil
		},
	}
	controller := NewController(backend, testLogger(), clock)

	lease, err := controller.Create(CreateSpec{
		Name:           "envboot-gpu",
		ResourceFilter: `["=", "$node_type", "gpu_rtx_6000"]`,
		Start:          clock.Now().Add(2 * time.Minute),
		End:            clock.Now().Add(24 * time.Hour),
		MinCount:       1,
		MaxCount:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, "lease-1", lease.ID)
	require.Len(t, captured.Reservations, 1)
	assert.Equal(t, blazar.ResourceTypePhysicalHost, captured.Reservations[0].ResourceType)
	assert.Equal(t, `["=", "$node_type", "gpu_rtx_6000"]`, captured.Reservations[0].ResourceProperties)
}

func TestCreateBackendRejection(t *testing.T) {
	clock := newFakeClock()
	backend := &mockBackend{
		createFunc: func(blazar.CreateOpts) (*blazar.Lease, error) {
			return nil, gophercloud.ErrUnexpectedResponseCode{Actual: 409}
		},
	}
	controller := NewController(backend, testLogger(), clock)

	_, err := controller.Create(CreateSpec{
		Name:     "l",
		Start:    clock.Now().Add(time.Minute),
		End:      clock.Now().Add(time.Hour),
		MinCount: 1,
		MaxCount: 1,
	})
	require.Error(t, err)
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

// --- WaitForActive ---

func TestWaitForActiveHappyPath(t *testing.T) {
	clock := newFakeClock()
	statuses := []blazar.Status{blazar.StatusPending, blazar.StatusPending, blazar.StatusActive}
	backend := &mockBackend{}
	backend.getFunc = func(id string) (*blazar.Lease, error) {
		status := statuses[min(backend.gets-1, len(statuses)-1)]
		return &blazar.Lease{ID: id, Status: status, Reservations: []blazar.Reservation{{ID: "res-1"}}}, nil
	}
	controller := NewController(backend, testLogger(), clock)

	lease, stats, err := controller.WaitForActive(context.Background(), "lease-1", 5*time.Minute, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, blazar.StatusActive, lease.Status)
	assert.Equal(t, 3, stats.Polls)
}

func TestWaitForActiveErrorIsFatal(t *testing.T) {
	clock := newFakeClock()
	backend := &mockBackend{
		getFunc: func(id string) (*blazar.Lease, error) {
			return &blazar.Lease{ID: id, Status: blazar.StatusError}, nil
		},
	}
	controller := NewController(backend, testLogger(), clock)

	_, stats, err := controller.WaitForActive(context.Background(), "lease-1", 5*time.Minute, 10*time.Second)
	require.Error(t, err)
	assert.Equal(t, fault.Lease, fault.KindOf(err))
	assert.Equal(t, 1, stats.Polls, "ERROR is not retried")
}

func TestWaitForActiveRetriesTransientPollErrors(t *testing.T) {
	clock := newFakeClock()
	backend := &mockBackend{}
	backend.getFunc = func(id string) (*blazar.Lease, error) {
		if backend.gets < 3 {
			return nil, errors.New("connection reset")
		}
		return &blazar.Lease{ID: id, Status: blazar.StatusActive}, nil
	}
	controller := NewController(backend, testLogger(), clock)

	lease, _, err := controller.WaitForActive(context.Background(), "lease-1", 5*time.Minute, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, blazar.StatusActive, lease.Status)
	assert.Equal(t, 3, backend.gets)
}

func TestWaitForActiveTimeoutLeavesLeaseInPlace(t *testing.T) {
	clock := newFakeClock()
	backend := &mockBackend{
		getFunc: func(id string) (*blazar.Lease, error) {
			return &blazar.Lease{ID: id, Status: blazar.StatusPending}, nil
		},
	}
	controller := NewController(backend, testLogger(), clock)

	last, _, err := controller.WaitForActive(context.Background(), "lease-1", 25*time.Second, 10*time.Second)
	require.Error(t, err)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
	require.NotNil(t, last, "last observed lease is returned for caller inspection")
	assert.Equal(t, blazar.StatusPending, last.Status)
	assert.Zero(t, backend.deletes, "timeout must not delete the lease")
}

// --- Reservation extraction ---

func TestReservationIDFirstWins(t *testing.T) {
	controller := NewController(&mockBackend{}, testLogger(), newFakeClock())

	id, err := controller.ReservationID(&blazar.Lease{
		ID: "lease-1",
		Reservations: []blazar.Reservation{
			{ID: "res-1", ResourceType: blazar.ResourceTypePhysicalHost},
			{ID: "res-2", ResourceType: blazar.ResourceTypePhysicalHost},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "res-1", id)
}

func TestReservationIDMissing(t *testing.T) {
	controller := NewController(&mockBackend{}, testLogger(), newFakeClock())

	_, err := controller.ReservationID(&blazar.Lease{ID: "lease-1"})
	assert.Equal(t, fault.NotFound, fault.KindOf(err))

	_, err = controller.ReservationID(&blazar.Lease{
		ID:           "lease-1",
		Reservations: []blazar.Reservation{{ResourceType: blazar.ResourceTypePhysicalHost}},
	})
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestResourceIDs(t *testing.T) {
	controller := NewController(&mockBackend{}, testLogger(), newFakeClock())

	ids := controller.ResourceIDs(&blazar.Lease{
		Reservations: []blazar.Reservation{
			{ID: "res-1", ResourceType: blazar.ResourceTypePhysicalHost, ResourceID: "node-1"},
			{ID: "res-2", ResourceType: blazar.ResourceTypeVirtualInstance, ResourceID: "ignored"},
			{ID: "res-3", ResourceType: blazar.ResourceTypePhysicalHost},
		},
	})
	assert.Equal(t, []string{"node-1"}, ids)
}

// WaitForActive must never sleep past the caller's budget.
func TestWaitForActiveHonorsBudget(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	backend := &mockBackend{
		getFunc: func(id string) (*blazar.Lease, error) {
			return &blazar.Lease{ID: id, Status: blazar.StatusPending}, nil
		},
	}
	controller := NewController(backend, testLogger(), clock)

	_, _, err := controller.WaitForActive(context.Background(), "lease-1", 35*time.Second, 10*time.Second)
	require.Error(t, err)
	assert.LessOrEqual(t, clock.Now().Sub(start), 35*time.Second)
}

var _ poll.Clock = (*fakeClock)(nil)
