package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenWithEmptyDSNReturnsDisabledStore(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.False(t, s.Enabled())
}

func TestDisabledStoreRecordRunIsNoOp(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.NoError(t, s.RecordRun(context.Background(), Run{RequestID: "r1"}))
}

func TestDisabledStoreListRunsReturnsEmpty(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	runs, err := s.ListRuns(context.Background(), "/project", 10)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestNilStoreIsSafelyDisabled(t *testing.T) {
	var s *Store
	require.False(t, s.Enabled())
}
