package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envagent/envboot/blazar"
	"github.com/envagent/envboot/fault"
)

func TestDeleteDryRunSkipsBackend(t *testing.T) {
	backend := &mockBackend{}
	deleter := NewDeleter(backend, testLogger(), newFakeClock())

	outcome, err := deleter.Execute(context.Background(), DeleteRequest{LeaseID: "abc", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSimulated, outcome.Status)
	assert.Zero(t, backend.deletes)
	assert.Zero(t, backend.gets)
}

func TestDeleteRefusedWithoutConfirm(t *testing.T) {
	backend := &mockBackend{}
	deleter := NewDeleter(backend, testLogger(), newFakeClock())

	outcome, err := deleter.Execute(context.Background(), DeleteRequest{LeaseID: "abc"})
	require.Error(t, err)
	assert.Equal(t, OutcomeRejected, outcome.Status)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.Zero(t, backend.deletes, "missing confirmation must not reach the backend")
}

func TestDeleteMissingLeaseID(t *testing.T) {
	deleter := NewDeleter(&mockBackend{}, testLogger(), newFakeClock())

	outcome, err := deleter.Execute(context.Background(), DeleteRequest{Confirm: true})
	require.Error(t, err)
	assert.Equal(t, OutcomeError, outcome.Status)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestDeleteAlreadyDeletedIsIdempotent(t *testing.T) {
	backend := &mockBackend{
		deleteFunc: func(string) error { return gophercloud.ErrDefault404{} },
	}
	deleter := NewDeleter(backend, testLogger(), newFakeClock())
	req := DeleteRequest{LeaseID: "abc", Confirm: true, TreatNotFoundAsOK: true}

	for i := 0; i < 2; i++ {
		outcome, err := deleter.Execute(context.Background(), req)
		require.NoError(t, err, "attempt %d", i+1)
		assert.Equal(t, OutcomeAlreadyDeleted, outcome.Status, "attempt %d", i+1)
	}
}

func TestDeleteNotFoundWithoutFlagIsError(t *testing.T) {
	backend := &mockBackend{
		deleteFunc: func(string) error { return gophercloud.ErrDefault404{} },
	}
	deleter := NewDeleter(backend, testLogger(), newFakeClock())

	outcome, err := deleter.Execute(context.Background(), DeleteRequest{LeaseID: "abc", Confirm: true})
	require.Error(t, err)
	assert.Equal(t, OutcomeError, outcome.Status)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestDeleteWithoutWaitReportsRequested(t *testing.T) {
	backend := &mockBackend{
		deleteFunc: func(string) error { return nil },
	}
	deleter := NewDeleter(backend, testLogger(), newFakeClock())

	outcome, err := deleter.Execute(context.Background(), DeleteRequest{LeaseID: "abc", Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRequested, outcome.Status)
	assert.Zero(t, backend.gets, "no removal confirmation without wait")
}

func TestDeleteWaitPollsUntilGone(t *testing.T) {
	backend := &mockBackend{
		deleteFunc: func(string) error { return nil },
	}
	backend.getFunc = func(id string) (*blazar.Lease, error) {
		if backend.gets < 3 {
			return &blazar.Lease{ID: id, Status: blazar.StatusTerminated}, nil
		}
		return nil, gophercloud.ErrDefault404{}
	}
	deleter := NewDeleter(backend, testLogger(), newFakeClock())

	outcome, err := deleter.Execute(context.Background(), DeleteRequest{
		LeaseID: "abc", Confirm: true, Wait: time.Minute, PollInterval: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome.Status)
	assert.Equal(t, 3, outcome.Polls)
}

func TestDeleteWaitTimeoutCarriesLastError(t *testing.T) {
	transient := errors.New("gateway glitch 502")
	backend := &mockBackend{
		deleteFunc: func(string) error { return nil },
		getFunc:    func(string) (*blazar.Lease, error) { return nil, transient },
	}
	deleter := NewDeleter(backend, testLogger(), newFakeClock())

	outcome, err := deleter.Execute(context.Background(), DeleteRequest{
		LeaseID: "abc", Confirm: true, Wait: 12 * time.Second, PollInterval: 5 * time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, OutcomeTimeout, outcome.Status)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
	assert.ErrorIs(t, err, transient)
	assert.Positive(t, outcome.Polls)
}
