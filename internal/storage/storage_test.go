package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Record(&TransferRecord{
		ConnID: "c1", Operation: "LIST", Status: StatusOK,
	}))
	require.NoError(t, s.Record(&TransferRecord{
		ConnID: "c2", Operation: "DOWNLOAD", Argument: "song.mp3",
		BytesSent: 10000, Digest: "ab12", Status: StatusOK,
	}))
	require.NoError(t, s.Record(&TransferRecord{
		ConnID: "c3", Operation: "DOWNLOAD", Argument: "gone.mp3",
		Status: StatusFileError, Code: 2,
	}))

	records, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first.
	assert.Equal(t, "c3", records[0].ConnID)
	assert.Equal(t, StatusFileError, records[0].Status)
	assert.Equal(t, 2, records[0].Code)
	assert.Equal(t, "c1", records[2].ConnID)
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(&TransferRecord{Operation: "LIST", Status: StatusOK}))
	}

	records, err := s.Recent(2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestTotals(t *testing.T) {
	s := openTestStore(t)

	count, bytes, err := s.Totals()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, bytes)

	require.NoError(t, s.Record(&TransferRecord{Operation: "DOWNLOAD", BytesSent: 100, Status: StatusOK}))
	require.NoError(t, s.Record(&TransferRecord{Operation: "DOWNLOAD", BytesSent: 250, Status: StatusOK}))

	count, bytes, err = s.Totals()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.EqualValues(t, 350, bytes)
}
