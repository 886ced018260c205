// internal/workbook/workbook_test.go
package workbook

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hshokrig/chicken-vault/internal/models"
)

func newTempWorkbook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game night.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "legacy"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func newTestAdapter(t *testing.T) (*Adapter, string) {
	t.Helper()
	path := newTempWorkbook(t)
	a, err := New(path, nil)
	require.NoError(t, err)
	a.baseInterval = time.Millisecond
	return a, path
}

func testPlayers() []models.Player {
	return []models.Player{
		{ID: uuid.New(), Name: "Ann", Seat: 0},
		{ID: uuid.New(), Name: "José & Bo!", Seat: 1},
	}
}

func TestNewValidatesPath(t *testing.T) {
	_, err := New("", nil)
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = New("/nonexistent/dir/book.xlsx", nil)
	assert.ErrorIs(t, err, ErrPathMissing)
}

func TestAssignSheetNames(t *testing.T) {
	players := testPlayers()
	assigned := AssignSheetNames(players)
	require.Len(t, assigned, 2)
	assert.Equal(t, "S1-ANN", assigned[0].SheetName)
	assert.Equal(t, "S2-JOSBO", assigned[1].SheetName)

	// deterministic for the same roster
	again := AssignSheetNames(players)
	assert.Equal(t, assigned[0].SheetName, again[0].SheetName)
	assert.Equal(t, assigned[1].SheetName, again[1].SheetName)

	// inputs are not mutated
	assert.Empty(t, players[0].SheetName)
}

func TestAssignSheetNamesLengthAndFallback(t *testing.T) {
	long := models.Player{Name: "An Extremely Long Player Display Name", Seat: 0}
	blank := models.Player{Name: "!!!", Seat: 1}
	assigned := AssignSheetNames([]models.Player{long, blank})
	assert.LessOrEqual(t, len(assigned[0].SheetName), maxSheetName)
	assert.Equal(t, "S2-PLAYER", assigned[1].SheetName)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(errors.New("sheet does not exist")))
	assert.True(t, isTransient(syscall.EBUSY))
	assert.True(t, isTransient(errors.New("open book.xlsx: the file is used by another process")))
	assert.True(t, isTransient(errors.New("zip: not a valid zip file")))
}

func TestWithRetryRecoversFromTransientFailures(t *testing.T) {
	a, _ := newTestAdapter(t)
	calls := 0
	retries, err := a.withRetry("test", func() error {
		calls++
		if calls <= 2 {
			return syscall.EBUSY
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	a, _ := newTestAdapter(t)
	boom := errors.New("sheet does not exist")
	calls := 0
	retries, err := a.withRetry("test", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, retries)
}

func TestInitializeWriteReadRoundTrip(t *testing.T) {
	a, path := newTestAdapter(t)
	players := testPlayers()

	assigned, err := a.InitializeForPlayers(players)
	require.NoError(t, err)
	require.Len(t, assigned, 2)

	require.NoError(t, a.PrepareScoringRound(assigned, 1, "R1-ABCD"))
	require.NoError(t, a.WriteSubmission(assigned[0], 1, "R1-ABCD", "SAFE", "red"))

	snap, err := a.ReadSnapshot(assigned, 1)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, 0, snap.Retries)
	assert.False(t, snap.MTime.IsZero())

	row := snap.Rows[assigned[0].ID]
	assert.Equal(t, 1, row.Round)
	assert.Equal(t, "R1-ABCD", row.Code)
	assert.Equal(t, "SAFE", row.Level)
	assert.Equal(t, "RED", row.Guess) // cells are normalized to uppercase
	assert.True(t, row.Submitted)

	// the second player only has the round markers so far
	other := snap.Rows[assigned[1].ID]
	assert.Equal(t, 1, other.Round)
	assert.Empty(t, other.Level)
	assert.False(t, other.Submitted)

	// unrelated sheets in the shared file survive re-initialization
	_, err = a.InitializeForPlayers(players)
	require.NoError(t, err)
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	legacy, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "legacy", legacy)
	idx, err := f.GetSheetIndex("S1-ANN")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, idx, 0)
}

func TestWriteAcknowledgements(t *testing.T) {
	a, path := newTestAdapter(t)
	assigned, err := a.InitializeForPlayers(testPlayers())
	require.NoError(t, err)

	at := time.Date(2026, 8, 30, 20, 15, 0, 0, time.UTC)
	require.NoError(t, a.WriteAcknowledgements([]Ack{
		{SheetName: assigned[0].SheetName, Round: 1, AcceptedAt: at, Message: "accepted"},
		{SheetName: assigned[1].SheetName, Round: 1, Message: "level \"RISKY\" is not SAFE, MEDIUM or BOLD"},
	}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	accepted, _ := f.GetCellValue(assigned[0].SheetName, "G2")
	assert.Equal(t, at.Format(time.RFC3339), accepted)
	note, _ := f.GetCellValue(assigned[1].SheetName, "H2")
	assert.Contains(t, note, "RISKY")
}

func TestDetectAlertsPathMissing(t *testing.T) {
	a, path := newTestAdapter(t)

	// simulate the sync client renaming the file out from under us
	renamed := filepath.Join(filepath.Dir(path), "game night (conflict copy).xlsx")
	require.NoError(t, os.Rename(path, renamed))

	alerts := a.DetectAlerts(time.Time{}, false)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertPathMissing, alerts[0].Kind)
	assert.Equal(t, "path-missing", alerts[0].ID)
	assert.Contains(t, alerts[0].Candidates, renamed)
}

func TestDetectAlertsNewerDuplicate(t *testing.T) {
	a, path := newTestAdapter(t)
	a.duplicateGrace = 0

	dup := filepath.Join(filepath.Dir(path), "game night (1).xlsx")
	require.NoError(t, os.WriteFile(dup, []byte("x"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(dup, future, future))

	alerts := a.DetectAlerts(time.Time{}, false)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertNewerDuplicate, alerts[0].Kind)
	assert.Contains(t, alerts[0].Candidates, dup)
}

func TestDetectAlertsSyncStale(t *testing.T) {
	a, path := newTestAdapter(t)
	a.staleAfter = time.Millisecond

	// the file last changed before our last-known read: sync has stalled
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))
	stale := time.Now().Add(-time.Minute)

	alerts := a.DetectAlerts(stale, true)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSyncStale, alerts[0].Kind)

	// outside scoring the same condition stays quiet
	assert.Empty(t, a.DetectAlerts(stale, false))

	// a zero last-known mtime means no baseline yet
	assert.Empty(t, a.DetectAlerts(time.Time{}, true))
}

func TestLockAndRetryAlerts(t *testing.T) {
	la := LockAlert("read_snapshot", errors.New("busy"))
	assert.Equal(t, "locked:read_snapshot", la.ID)
	assert.Equal(t, models.AlertLocked, la.Kind)

	ra := RetryAlert("read", 2)
	assert.Equal(t, "retry-ok:read", ra.ID)
	assert.Equal(t, models.AlertParseRetry, ra.Kind)
	assert.Contains(t, ra.Message, "2 retries")
}
