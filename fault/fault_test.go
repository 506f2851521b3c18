package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gophercloud/gophercloud"
	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("creating lease: %w", New(Validation, "min must be at least 1"))
	assert.Equal(t, Validation, KindOf(err))
	assert.True(t, Is(err, Validation))
}

func TestFromBackendTypedResponseCode(t *testing.T) {
	raw := gophercloud.ErrUnexpectedResponseCode{Actual: 409}
	classified := FromBackend(raw)
	assert.Equal(t, Conflict, classified.Kind)

	raw = gophercloud.ErrUnexpectedResponseCode{Actual: 503}
	assert.Equal(t, ServiceUnavailable, FromBackend(raw).Kind)
}

func TestFromBackendDefault404(t *testing.T) {
	var err error = gophercloud.ErrDefault404{}
	assert.Equal(t, NotFound, FromBackend(err).Kind)
	assert.True(t, IsNotFound(err))
}

func TestFromBackendTextHeuristic(t *testing.T) {
	for _, tc := range []struct {
		msg  string
		kind Kind
	}{
		{"Lease deletion failed (404)", NotFound},
		{"401: token expired", Unauthorized},
		{"request rejected with 403 by policy", Forbidden},
		{"backend exploded somehow", Backend},
	} {
		assert.Equal(t, tc.kind, FromBackend(errors.New(tc.msg)).Kind, tc.msg)
	}
}

func TestFromBackendNoValidHost(t *testing.T) {
	err := errors.New("No valid host was found. There are not enough hosts available.")
	assert.Equal(t, NoValidHost, FromBackend(err).Kind)
}

func TestIsNotFoundMessage(t *testing.T) {
	assert.True(t, IsNotFound(errors.New("lease abc could not be found: NotFound")))
	assert.False(t, IsNotFound(errors.New("quota exceeded")))
	assert.False(t, IsNotFound(nil))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(New(Validation, "bad duration")))
	assert.Equal(t, 2, ExitCode(New(Timeout, "poll budget exhausted")))
	assert.Equal(t, 2, ExitCode(New(Backend, "boom")))
	assert.Equal(t, 2, ExitCode(New(NoValidHost, "no capacity")))
}

func TestHTTPStatusFromAttribute(t *testing.T) {
	status, ok := HTTPStatus(gophercloud.ErrUnexpectedResponseCode{Actual: 500})
	assert.True(t, ok)
	assert.Equal(t, 500, status)

	_, ok = HTTPStatus(errors.New("nothing to see here"))
	assert.False(t, ok)
}
