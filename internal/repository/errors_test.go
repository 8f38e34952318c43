package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistenceErrorWithRange(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PersistenceError{Op: "upsert_observations", Start: 400, End: 600, Err: cause}

	assert.Contains(t, err.Error(), "upsert_observations")
	assert.Contains(t, err.Error(), "[400:600)")
	require.ErrorIs(t, err, cause)
}

func TestPersistenceErrorWithoutRange(t *testing.T) {
	cause := errors.New("disk full")
	err := &PersistenceError{Op: "replace_yearly_stats", Err: cause}

	assert.Contains(t, err.Error(), "replace_yearly_stats failed:")
	assert.NotContains(t, err.Error(), "[")
	assert.Equal(t, cause, err.Unwrap())
}
