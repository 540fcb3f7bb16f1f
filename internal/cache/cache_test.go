package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

func TestStoreAndLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(NewDiskBackend(dir), time.Hour)

	records := make([]models.ConversationRecord, MinSize)
	for i := range records {
		records[i] = models.ConversationRecord{ID: string(rune('a' + i)), RelevanceScore: 0.9}
	}

	hash := ProjectHash("/project/root", []string{"go", "aggregator"})
	require.NoError(t, c.Store("/project/root", hash, records, len(records), 10*time.Millisecond))

	got, meta, ok := c.Lookup("/project/root", hash, MinSize, func(models.ConversationRecord) bool { return true })
	require.True(t, ok)
	require.Len(t, got, MinSize)
	require.Equal(t, MinSize, meta.ConversationCount)
}

func TestLookupMissesOnHashMismatch(t *testing.T) {
	dir := t.TempDir()
	c := New(NewDiskBackend(dir), time.Hour)

	records := make([]models.ConversationRecord, MinSize)
	hash := ProjectHash("/project/root", []string{"go"})
	require.NoError(t, c.Store("/project/root", hash, records, len(records), 0))

	_, _, ok := c.Lookup("/project/root", "different-hash", MinSize, func(models.ConversationRecord) bool { return true })
	require.False(t, ok)
}

func TestLookupMissesWhenExpired(t *testing.T) {
	dir := t.TempDir()
	c := New(NewDiskBackend(dir), 1*time.Nanosecond)

	records := make([]models.ConversationRecord, MinSize)
	hash := ProjectHash("/project/root", nil)
	require.NoError(t, c.Store("/project/root", hash, records, len(records), 0))
	time.Sleep(time.Millisecond)

	_, _, ok := c.Lookup("/project/root", hash, MinSize, func(models.ConversationRecord) bool { return true })
	require.False(t, ok)
}

func TestLookupReFiltersAgainstPredicate(t *testing.T) {
	dir := t.TempDir()
	c := New(NewDiskBackend(dir), time.Hour)

	records := []models.ConversationRecord{
		{ID: "1", RelevanceScore: 0.9}, {ID: "2", RelevanceScore: 0.1},
		{ID: "3", RelevanceScore: 0.9}, {ID: "4", RelevanceScore: 0.9},
		{ID: "5", RelevanceScore: 0.9}, {ID: "6", RelevanceScore: 0.9},
	}
	hash := ProjectHash("/project/root", nil)
	require.NoError(t, c.Store("/project/root", hash, records, len(records), 0))

	got, _, ok := c.Lookup("/project/root", hash, 3, func(r models.ConversationRecord) bool { return r.RelevanceScore >= 0.5 })
	require.True(t, ok)
	require.Len(t, got, 5)
}

func TestStoreSkipsWhenBelowMinSize(t *testing.T) {
	dir := t.TempDir()
	c := New(NewDiskBackend(dir), time.Hour)

	records := []models.ConversationRecord{{ID: "1"}}
	hash := ProjectHash("/project/root", nil)
	require.NoError(t, c.Store("/project/root", hash, records, 1, 0))

	_, _, ok := c.Lookup("/project/root", hash, 1, func(models.ConversationRecord) bool { return true })
	require.False(t, ok)
}

func TestProjectHashStableForSameInputs(t *testing.T) {
	h1 := ProjectHash("/p", []string{"b", "a"})
	h2 := ProjectHash("/p", []string{"a", "b"})
	require.Equal(t, h1, h2) // sorted before hashing
}
