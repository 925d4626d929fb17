package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPlatformRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	got, err := withPlatformRetry(context.Background(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestWithPlatformRetryGivesUpAfterBudget(t *testing.T) {
	attempts := 0
	_, err := withPlatformRetry(context.Background(), func() (string, error) {
		attempts++
		return "", errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
