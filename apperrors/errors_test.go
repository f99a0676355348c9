package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfUnwrapsChain(t *testing.T) {
	base := NotFound("call not found")
	wrapped := fmt.Errorf("loading call: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("room provider unreachable", cause)

	assert.Equal(t, KindUpstreamFailure, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestStateConflictNamesCurrentState(t *testing.T) {
	err := StateConflict("cannot accept call", "declined")

	details := DetailsOf(err)
	require.NotNil(t, details)
	assert.Equal(t, "declined", details["currentState"])
}

func TestQuotaExceededDetails(t *testing.T) {
	err := QuotaExceeded("likes", 0, "tomorrow")

	details := DetailsOf(err)
	require.NotNil(t, details)
	assert.Equal(t, "likes", details["feature"])
	assert.Equal(t, 0, details["remaining"])
	assert.Equal(t, "tomorrow", details["resetsAt"])
}
