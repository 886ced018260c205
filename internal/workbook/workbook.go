// internal/workbook/workbook.go
package workbook

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/hshokrig/chicken-vault/internal/models"
)

// The adapter treats one externally-synced .xlsx file as a weakly-consistent
// submission store. Layout is row-per-round: each player owns one sheet whose
// name is derived from their seat and display name; row 1 is a header and
// round r lives at row r+1.
//
// Columns: A=Round B=Code C=Status D=Level E=Guess F=Submitted G=AcceptedAt H=Note.

const (
	colRound     = 1
	colCode      = 2
	colStatus    = 3
	colLevel     = 4
	colGuess     = 5
	colSubmitted = 6
	colAccepted  = 7
	colNote      = 8

	listsSheet = "Lists"

	maxSheetName = 31
)

var headerRow = []interface{}{"Round", "Code", "Status", "Level", "Guess", "Submitted", "AcceptedAt", "Note"}

// ErrNoPath indicates a missing or empty workbook path at construction time.
var ErrNoPath = errors.New("workbook path is required")

// ErrPathMissing indicates the configured workbook file does not exist.
var ErrPathMissing = errors.New("workbook file does not exist")

// playerSheetPattern matches sheets owned by this adapter (seat-prefixed).
var playerSheetPattern = regexp.MustCompile(`^S\d+-`)

var sheetSanitizer = regexp.MustCompile(`[^A-Z0-9]+`)

// Row is the raw, normalized cell content of one player's row for a round.
type Row struct {
	Round     int
	Code      string
	Level     string
	Guess     string
	Submitted bool
}

// Snapshot is the result of one workbook read: the file's mtime, the rows
// keyed by player id, and how many transient-failure retries the read needed.
type Snapshot struct {
	MTime   time.Time
	Rows    map[uuid.UUID]Row
	Retries int
}

// Ack is a best-effort write-back of an acceptance into a player's row.
type Ack struct {
	SheetName  string
	Round      int
	AcceptedAt time.Time
	Message    string
}

// Adapter reads and writes the shared workbook with bounded retry on
// transient lock errors. It serializes all file operations through a mutex so
// no two logical operations touch the file concurrently.
type Adapter struct {
	path   string
	logger *log.Logger

	mu sync.Mutex

	// retry knobs, overridable in tests
	maxRetries   uint64
	baseInterval time.Duration

	// alert thresholds, overridable in tests
	duplicateGrace time.Duration
	staleAfter     time.Duration
}

// New validates the workbook path and builds an adapter. A missing file is a
// configuration failure: the dealer must point at an existing shared sheet.
func New(path string, logger *log.Logger) (*Adapter, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPathMissing, path)
		}
		return nil, fmt.Errorf("stat workbook: %w", err)
	}
	if logger == nil {
		logger = log.New()
	}
	return &Adapter{
		path:           path,
		logger:         logger,
		maxRetries:     5,
		baseInterval:   200 * time.Millisecond,
		duplicateGrace: 30 * time.Second,
		staleAfter:     90 * time.Second,
	}, nil
}

// Path returns the configured workbook path.
func (a *Adapter) Path() string { return a.path }

// isTransient reports whether an error looks like a lock or mid-sync failure
// that is worth retrying: cloud-sync folders briefly hold the file with
// EBUSY/EACCES/EPERM while uploading, and Excel holds a write lock.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, errno := range []syscall.Errno{syscall.EBUSY, syscall.EACCES, syscall.EPERM, syscall.EAGAIN} {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "used by another process") ||
		strings.Contains(msg, "resource temporarily unavailable") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "zip: not a valid zip file") // partial write mid-sync
}

// withRetry runs fn under exponential backoff, retrying only transient
// failures, and reports how many retries were needed.
func (a *Adapter) withRetry(op string, fn func() error) (int, error) {
	retries := 0
	bo := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(a.baseInterval)),
		a.maxRetries,
	)
	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		retries++
		a.logger.WithFields(log.Fields{"op": op, "retry": retries}).Warnf("workbook busy: %v", err)
		return err
	}, bo)
	return retries, err
}

// sanitizeSheetBase uppercases a display name and strips everything Excel
// rejects in sheet names.
func sanitizeSheetBase(name string) string {
	s := sheetSanitizer.ReplaceAllString(strings.ToUpper(name), "")
	if s == "" {
		s = "PLAYER"
	}
	return s
}

// AssignSheetNames derives a unique, seat-prefixed sheet name per player.
// The derivation is deterministic for a given player set, so re-running
// initialization yields the same names.
func AssignSheetNames(players []models.Player) []models.Player {
	out := make([]models.Player, len(players))
	copy(out, players)
	taken := make(map[string]bool, len(out))
	for i := range out {
		base := fmt.Sprintf("S%d-%s", out[i].Seat+1, sanitizeSheetBase(out[i].Name))
		if len(base) > maxSheetName {
			base = base[:maxSheetName]
		}
		name := base
		for n := 2; taken[name]; n++ {
			suffix := fmt.Sprintf("-%d", n)
			trimmed := base
			if len(trimmed)+len(suffix) > maxSheetName {
				trimmed = trimmed[:maxSheetName-len(suffix)]
			}
			name = trimmed + suffix
		}
		taken[name] = true
		out[i].SheetName = name
	}
	return out
}

// InitializeForPlayers assigns sheet names, removes previously created
// player sheets, and recreates one region per player with header and
// data-validation metadata. Idempotent for the same player set. Transient
// lock errors are retried; exhaustion propagates to the caller since the
// game cannot start without an initialized workbook.
func (a *Adapter) InitializeForPlayers(players []models.Player) ([]models.Player, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	assigned := AssignSheetNames(players)
	_, err := a.withRetry("initialize", func() error {
		f, err := excelize.OpenFile(a.path)
		if err != nil {
			return err
		}
		defer f.Close()

		// Targeted removal: only sheets this adapter created. Unrelated
		// legacy sheets in the shared file are left alone.
		for _, sheet := range f.GetSheetList() {
			if playerSheetPattern.MatchString(sheet) {
				if err := f.DeleteSheet(sheet); err != nil {
					return err
				}
			}
		}

		if err := a.writeListsSheet(f); err != nil {
			return err
		}
		for _, p := range assigned {
			if err := a.createPlayerSheet(f, p.SheetName); err != nil {
				return err
			}
		}
		return f.Save()
	})
	if err != nil {
		return nil, fmt.Errorf("initialize workbook: %w", err)
	}
	a.logger.WithField("players", len(assigned)).Info("workbook initialized")
	return assigned, nil
}

// writeListsSheet refreshes the hidden sheet holding the recognized value
// lists (colors, suits, ranks, levels) referenced by cell validations.
func (a *Adapter) writeListsSheet(f *excelize.File) error {
	if idx, _ := f.GetSheetIndex(listsSheet); idx < 0 {
		if _, err := f.NewSheet(listsSheet); err != nil {
			return err
		}
	}
	cols := map[string][]string{
		"A": {"RED", "BLACK"},
		"B": {"H", "D", "C", "S"},
		"C": {"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"},
		"D": {"SAFE", "MEDIUM", "BOLD"},
	}
	for col, values := range cols {
		for i, v := range values {
			if err := f.SetCellValue(listsSheet, fmt.Sprintf("%s%d", col, i+1), v); err != nil {
				return err
			}
		}
	}
	visible := false
	return f.SetSheetVisible(listsSheet, visible)
}

func (a *Adapter) createPlayerSheet(f *excelize.File, sheet string) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	for i, h := range headerRow {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	levelDV := excelize.NewDataValidation(true)
	levelDV.Sqref = "D2:D200"
	if err := levelDV.SetDropList([]string{"SAFE", "MEDIUM", "BOLD"}); err != nil {
		return err
	}
	if err := f.AddDataValidation(sheet, levelDV); err != nil {
		return err
	}

	// Guess cells reference the Lists sheet since the full value set (colors,
	// suits, card codes) exceeds the inline drop-list limit.
	guessDV := excelize.NewDataValidation(false)
	guessDV.Sqref = "E2:E200"
	guessDV.SetSqrefDropList(fmt.Sprintf("%s!$A$1:$B$13", listsSheet))
	return f.AddDataValidation(sheet, guessDV)
}

// PrepareScoringRound marks the given round open for submission on every
// player sheet, tagged with the round code.
func (a *Adapter) PrepareScoringRound(players []models.Player, round int, code string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.withRetry("prepare_round", func() error {
		f, err := excelize.OpenFile(a.path)
		if err != nil {
			return err
		}
		defer f.Close()
		row := round + 1
		for _, p := range players {
			if p.SheetName == "" {
				continue
			}
			for col, v := range map[int]interface{}{
				colRound:  round,
				colCode:   code,
				colStatus: "OPEN",
			} {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				if err := f.SetCellValue(p.SheetName, cell, v); err != nil {
					return err
				}
			}
		}
		return f.Save()
	})
	if err != nil {
		return fmt.Errorf("prepare scoring round %d: %w", round, err)
	}
	return nil
}

// ReadSnapshot reads each player's row for the given round, normalized to
// uppercase. Transient read failures (file mid-write) are retried; the retry
// count is reported so the engine can surface a succeeded-after-retry
// diagnostic.
func (a *Adapter) ReadSnapshot(players []models.Player, round int) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := &Snapshot{Rows: make(map[uuid.UUID]Row, len(players))}
	retries, err := a.withRetry("read_snapshot", func() error {
		st, err := os.Stat(a.path)
		if err != nil {
			return err
		}
		f, err := excelize.OpenFile(a.path)
		if err != nil {
			return err
		}
		defer f.Close()

		snap.MTime = st.ModTime()
		row := round + 1
		for _, p := range players {
			if p.SheetName == "" {
				continue
			}
			r := Row{}
			r.Round = readIntCell(f, p.SheetName, colRound, row)
			r.Code = readCell(f, p.SheetName, colCode, row)
			r.Level = readCell(f, p.SheetName, colLevel, row)
			r.Guess = readCell(f, p.SheetName, colGuess, row)
			r.Submitted = readCell(f, p.SheetName, colSubmitted, row) == "YES"
			snap.Rows[p.ID] = r
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap.Retries = retries
	return snap, nil
}

func readCell(f *excelize.File, sheet string, col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	v, _ := f.GetCellValue(sheet, cell)
	return strings.ToUpper(strings.TrimSpace(v))
}

func readIntCell(f *excelize.File, sheet string, col, row int) int {
	n, _ := strconv.Atoi(readCell(f, sheet, col, row))
	return n
}

// WriteAcknowledgements writes acceptance timestamps and validation notes
// back into player rows. Best effort: callers degrade failures to a lock
// alert rather than blocking scoring progress.
func (a *Adapter) WriteAcknowledgements(acks []Ack) error {
	if len(acks) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.withRetry("write_acks", func() error {
		f, err := excelize.OpenFile(a.path)
		if err != nil {
			return err
		}
		defer f.Close()
		for _, ack := range acks {
			row := ack.Round + 1
			if !ack.AcceptedAt.IsZero() {
				cell, _ := excelize.CoordinatesToCellName(colAccepted, row)
				if err := f.SetCellValue(ack.SheetName, cell, ack.AcceptedAt.Format(time.RFC3339)); err != nil {
					return err
				}
			}
			cell, _ := excelize.CoordinatesToCellName(colNote, row)
			if err := f.SetCellValue(ack.SheetName, cell, ack.Message); err != nil {
				return err
			}
		}
		return f.Save()
	})
	return err
}

// WriteSubmission fills in a player's guess row directly. Used by demo mode
// to simulate player edits arriving through the sync folder.
func (a *Adapter) WriteSubmission(p models.Player, round int, code, level, guess string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.withRetry("write_submission", func() error {
		f, err := excelize.OpenFile(a.path)
		if err != nil {
			return err
		}
		defer f.Close()
		row := round + 1
		for col, v := range map[int]interface{}{
			colRound:     round,
			colCode:      code,
			colLevel:     level,
			colGuess:     guess,
			colSubmitted: "YES",
		} {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			if err := f.SetCellValue(p.SheetName, cell, v); err != nil {
				return err
			}
		}
		return f.Save()
	})
	return err
}

// LockAlert builds the diagnostic surfaced when retry attempts are exhausted.
func LockAlert(op string, err error) models.Alert {
	return models.Alert{
		ID:        "locked:" + op,
		Kind:      models.AlertLocked,
		Message:   fmt.Sprintf("workbook stayed locked during %s: %v", op, err),
		CreatedAt: time.Now(),
	}
}

// RetryAlert builds the diagnostic for a read that succeeded after retries.
func RetryAlert(op string, retries int) models.Alert {
	return models.Alert{
		ID:        "retry-ok:" + op,
		Kind:      models.AlertParseRetry,
		Message:   fmt.Sprintf("workbook %s succeeded after %d retries", op, retries),
		CreatedAt: time.Now(),
	}
}
