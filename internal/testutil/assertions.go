package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// RequireNoError fails the test immediately if err is non-nil.
func RequireNoError(t testing.TB, err error, msg string) {
	t.Helper()
	require.NoError(t, err, msg)
}

// RequireError fails the test if err is nil.
func RequireError(t testing.TB, err error, msg string) {
	t.Helper()
	require.Error(t, err, msg)
}

// RequireEqual fails the test if want and got differ.
func RequireEqual(t testing.TB, want, got any, msg string) {
	t.Helper()
	require.Equal(t, want, got, msg)
}

// RequireLen fails the test if v does not have n elements.
func RequireLen(t testing.TB, v any, n int, msg string) {
	t.Helper()
	require.Len(t, v, n, msg)
}

// RequireErrorAs fails the test unless err wraps a target's type.
func RequireErrorAs(t testing.TB, err error, target any, msg string) {
	t.Helper()
	require.ErrorAs(t, err, target, msg)
}

// RequireSameUsers fails the test unless want and got hold the same
// elements, ignoring order.
func RequireSameUsers(t testing.TB, want, got any, msg string) {
	t.Helper()
	require.ElementsMatch(t, want, got, msg)
}
