package churn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChurnFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "churn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadIntegerCounts(t *testing.T) {
	path := writeChurnFile(t, `
churn:
  - [0, join, 10]
  - [100, leave, 2]
`)
	entries, hasEnd, err := Load(path, 10)
	require.NoError(t, err)
	assert.False(t, hasEnd)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Time: 0, Action: ActionJoin, NumProc: 10}, entries[0])
	assert.Equal(t, Entry{Time: 100, Action: ActionLeave, NumProc: 2}, entries[1])
}

func TestLoadFractionalCount(t *testing.T) {
	path := writeChurnFile(t, `
churn:
  - [0, join, 0.5]
`)
	entries, _, err := Load(path, 11)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// round(0.5 * 11) = round(5.5) = 6
	assert.Equal(t, uint32(6), entries[0].NumProc)
}

func TestLoadFractionalCountThatIsWholeNumber(t *testing.T) {
	path := writeChurnFile(t, `
churn:
  - [0, join, 1.0]
`)
	entries, _, err := Load(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(10), entries[0].NumProc)
}

func TestLoadIDActions(t *testing.T) {
	path := writeChurnFile(t, `
churn:
  - [5, leave-id, 3]
  - [6, fail-id, 4]
  - [7, recover-id, 3]
`)
	entries, _, err := Load(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{Time: 5, Action: ActionLeaveID, ID: 3}, entries[0])
	assert.Equal(t, Entry{Time: 6, Action: ActionFailID, ID: 4}, entries[1])
	assert.Equal(t, Entry{Time: 7, Action: ActionRecoverID, ID: 3}, entries[2])
}

func TestLoadEndEvent(t *testing.T) {
	path := writeChurnFile(t, `
churn:
  - [1000, end, 0]
`)
	_, hasEnd, err := Load(path, 10)
	require.NoError(t, err)
	assert.True(t, hasEnd)
}

func TestLoadRejectsUnknownAction(t *testing.T) {
	path := writeChurnFile(t, `
churn:
  - [0, teleport, 1]
`)
	_, _, err := Load(path, 10)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedRow(t *testing.T) {
	path := writeChurnFile(t, `
churn:
  - [0, join]
`)
	_, _, err := Load(path, 10)
	assert.Error(t, err)
}
