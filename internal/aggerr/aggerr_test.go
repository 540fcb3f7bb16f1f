package aggerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfIgnoresStringFlattenedErrorButMatchesDirectError(t *testing.T) {
	base := SourceUnavailable("cursor", "no store found", nil)
	wrapped := errors.New("wrapped: " + base.Error())
	_, ok := KindOf(wrapped)
	require.False(t, ok)

	kind, ok := KindOf(base)
	require.True(t, ok)
	require.Equal(t, KindSourceUnavailable, kind)
}

func TestIsKindMatchesExactKind(t *testing.T) {
	err := Validation("limit must be positive", nil)
	require.True(t, IsKind(err, KindValidation))
	require.False(t, IsKind(err, KindCache))
}

func TestContainedKindsMatchSourceLevelErrors(t *testing.T) {
	contained := []Kind{KindSourceUnavailable, KindSourceTimeout, KindDecoder, KindCache}
	for _, k := range contained {
		require.True(t, Contained(k), "expected %s to be contained", k)
	}
	require.False(t, Contained(KindValidation))
	require.False(t, Contained(KindInternal))
}

func TestErrorStringIncludesSourceAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := SourceUnavailable("windsurf", "open sqlite store", cause)
	msg := err.Error()
	require.Contains(t, msg, "source_unavailable")
	require.Contains(t, msg, "windsurf")
	require.Contains(t, msg, "disk full")
}
