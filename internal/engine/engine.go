// internal/engine/engine.go
package engine

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/hshokrig/chicken-vault/internal/cards"
	"github.com/hshokrig/chicken-vault/internal/models"
	"github.com/hshokrig/chicken-vault/internal/workbook"
)

// WorkbookPort is the narrow I/O surface the engine drives. The adapter is a
// pure shim: all reconciliation (validity, round matching, dedup against
// already-accepted submissions) happens in the session, not behind this
// interface.
type WorkbookPort interface {
	Path() string
	InitializeForPlayers(players []models.Player) ([]models.Player, error)
	PrepareScoringRound(players []models.Player, round int, code string) error
	ReadSnapshot(players []models.Player, round int) (*workbook.Snapshot, error)
	DetectAlerts(lastKnownMTime time.Time, scoringActive bool) []models.Alert
	WriteAcknowledgements(acks []workbook.Ack) error
	WriteSubmission(p models.Player, round int, code, level, guess string) error
}

// roundSecret holds the per-round hidden state. Kept off RoundState so it can
// never leak through a serialized snapshot.
type roundSecret struct {
	card    cards.Card
	cardSet bool
	insider uuid.UUID
}

// Session is one dealer-controlled game. All state lives on this struct;
// nothing is package-global, so tests and multi-session hosts can hold
// isolated instances.
type Session struct {
	ID uuid.UUID

	// Clock drives every timer. Swap in a clockwork fake before the first
	// transition to run timer-based tests without sleeping.
	Clock clockwork.Clock

	// Recorder and Rounds are optional out-of-process mirrors; nil disables.
	Recorder ActionRecorder
	Rounds   RoundRecorder

	// Analyzer resolves transcripts into question decisions; nil disables the
	// AI path (manual question entry keeps working).
	Analyzer QuestionAnalyzer

	mu     sync.Mutex
	logger *log.Logger
	rnd    *rand.Rand

	phase     Phase
	cfg       models.GameConfig
	preflight [2]bool
	players   []*models.Player

	round  *models.RoundState
	secret *roundSecret

	totals  models.TeamTotals
	history []models.RoundSummary

	wb          WorkbookPort
	wbReady     bool
	lastWbMTime time.Time
	alerts      alertRing

	finalizing   bool
	pollInFlight bool
	actionIndex  int

	// timer bookkeeping: every scheduled callback carries the generation it
	// was armed under and is a no-op if a transition has since bumped it.
	timerGen int
	timers   []clockwork.Timer
	pollStop chan struct{}

	demoActive     bool
	demoFabricated bool
	demoSavedCfg   models.GameConfig

	subs      map[int]chan models.Snapshot
	nextSubID int
}

// validateConfig rejects parameter sets that would break the engine later
// (a zero poll interval, for one, is a ticker panic at SCORING entry).
func validateConfig(cfg models.GameConfig) error {
	if cfg.Rounds < 1 || cfg.InvestigationSec < 1 || cfg.ScoringSec < 1 ||
		cfg.PollIntervalSec < 1 || cfg.VaultStart < 0 {
		return ErrBadConfig
	}
	return nil
}

// NewSession builds a session in LOBBY with the given config and workbook
// adapter. An invalid config fails here, never mid-game.
func NewSession(cfg models.GameConfig, wb WorkbookPort, logger *log.Logger) (*Session, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New()
	}
	return &Session{
		ID:     uuid.New(),
		Clock:  clockwork.NewRealClock(),
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		phase:  PhaseLobby,
		cfg:    cfg,
		wb:     wb,
		subs:   make(map[int]chan models.Snapshot),
	}, nil
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SeatAfter is the clockwise turn rotation: a total bijection on 0..n-1.
func SeatAfter(seat, n int) int {
	return (seat + 1) % n
}

func (s *Session) playerByID(id uuid.UUID) *models.Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Session) playerAtSeat(seat int) *models.Player {
	for _, p := range s.players {
		if p.Seat == seat {
			return p
		}
	}
	return nil
}

// playersCopy returns a seat-ordered value copy for use outside the lock.
func (s *Session) playersCopyLocked() []models.Player {
	out := make([]models.Player, len(s.players))
	for i, p := range s.players {
		out[i] = *p
	}
	return out
}

// --- LOBBY operations -------------------------------------------------------

// AddPlayer seats a new player at the end of the table. LOBBY only.
func (s *Session) AddPlayer(name string, team models.Team) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("add player", s.phase)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Snapshot{}, ErrEmptyName
	}
	if team != models.TeamA && team != models.TeamB {
		// Alternate teams by default to keep them roughly balanced.
		if len(s.players)%2 == 0 {
			team = models.TeamA
		} else {
			team = models.TeamB
		}
	}
	p := &models.Player{
		ID:   uuid.New(),
		Name: name,
		Team: team,
		Seat: len(s.players),
	}
	s.players = append(s.players, p)
	s.wbReady = false // sheet set changed; workbook must be re-initialized
	s.recordActionLocked(p.ID.String(), "player_add", map[string]interface{}{"name": name, "team": team})
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// UpdatePlayer renames a player and/or moves them between teams. LOBBY only.
func (s *Session) UpdatePlayer(id uuid.UUID, name string, team models.Team) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("update player", s.phase)
	}
	p := s.playerByID(id)
	if p == nil {
		return models.Snapshot{}, ErrUnknownPlayer
	}
	if name = strings.TrimSpace(name); name != "" {
		p.Name = name
		s.wbReady = false // derived sheet name changes with the display name
	}
	if team == models.TeamA || team == models.TeamB {
		p.Team = team
	}
	s.recordActionLocked(id.String(), "player_update", nil)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// RemovePlayer unseats a player and renumbers the remaining seats to a dense
// 0..n-1 range. LOBBY only.
func (s *Session) RemovePlayer(id uuid.UUID) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("remove player", s.phase)
	}
	idx := -1
	for i, p := range s.players {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Snapshot{}, ErrUnknownPlayer
	}
	s.players = append(s.players[:idx], s.players[idx+1:]...)
	s.renumberSeatsLocked()
	s.wbReady = false
	s.recordActionLocked(id.String(), "player_remove", nil)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// ReorderPlayers reseats players in the given order. The list must be a
// permutation of the current player ids. LOBBY only.
func (s *Session) ReorderPlayers(order []uuid.UUID) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("reorder players", s.phase)
	}
	if len(order) != len(s.players) {
		return models.Snapshot{}, ErrBadReorder
	}
	reordered := make([]*models.Player, 0, len(order))
	seen := make(map[uuid.UUID]bool, len(order))
	for _, id := range order {
		p := s.playerByID(id)
		if p == nil || seen[id] {
			return models.Snapshot{}, ErrBadReorder
		}
		seen[id] = true
		reordered = append(reordered, p)
	}
	s.players = reordered
	s.renumberSeatsLocked()
	s.wbReady = false
	s.recordActionLocked("dealer", "players_reorder", nil)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// renumberSeatsLocked reassigns dense seat indices following current order.
func (s *Session) renumberSeatsLocked() {
	for i, p := range s.players {
		p.Seat = i
	}
}

// UpdateConfig replaces the tunable parameters. The workbook path is fixed at
// construction and cannot be changed at runtime. LOBBY only.
func (s *Session) UpdateConfig(cfg models.GameConfig) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("update config", s.phase)
	}
	if err := validateConfig(cfg); err != nil {
		return models.Snapshot{}, err
	}
	cfg.WorkbookPath = s.cfg.WorkbookPath
	s.cfg = cfg
	s.recordActionLocked("dealer", "config_update", nil)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// SetPreflight records the dealer's two file-sync hygiene acknowledgements.
// LOBBY only.
func (s *Session) SetPreflight(syncConfirmed, fileClosedConfirmed bool) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("set preflight", s.phase)
	}
	s.preflight = [2]bool{syncConfirmed, fileClosedConfirmed}
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// InitializeWorkbook (re)creates the player regions in the shared file and
// stores the derived sheet names. Requires the preflight checklist. Transient
// lock failures propagate to the caller here; the game cannot start without
// an initialized workbook. LOBBY only.
func (s *Session) InitializeWorkbook() (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("initialize workbook", s.phase)
	}
	if err := s.initializeWorkbookLocked(); err != nil {
		return models.Snapshot{}, err
	}
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

func (s *Session) initializeWorkbookLocked() error {
	if !s.preflight[0] || !s.preflight[1] {
		return ErrPreflightIncomplete
	}
	assigned, err := s.wb.InitializeForPlayers(s.playersCopyLocked())
	if err != nil {
		return err
	}
	for _, ap := range assigned {
		if p := s.playerByID(ap.ID); p != nil {
			p.SheetName = ap.SheetName
		}
	}
	s.wbReady = true
	s.lastWbMTime = time.Time{}
	s.alerts.clear()
	s.recordActionLocked("dealer", "workbook_initialized", map[string]interface{}{"players": len(assigned)})
	return nil
}

// ResetToLobby aborts whatever is running, cancels every pending timer
// synchronously, and returns to LOBBY. Always permitted.
func (s *Session) ResetToLobby() (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimersLocked()
	s.round = nil
	s.secret = nil
	s.finalizing = false
	if s.demoActive {
		s.cfg = s.demoSavedCfg
		s.demoActive = false
	}
	if s.demoFabricated {
		s.removeDemoPlayersLocked()
	}
	for _, p := range s.players {
		p.LastAction = ""
	}
	// Preflight is a per-sitting hygiene check; force a fresh confirmation.
	s.preflight = [2]bool{}
	s.phase = PhaseLobby
	s.recordActionLocked("dealer", "reset_to_lobby", nil)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

func (s *Session) removeDemoPlayersLocked() {
	kept := s.players[:0]
	for _, p := range s.players {
		if !p.Demo {
			kept = append(kept, p)
		}
	}
	s.players = kept
	s.renumberSeatsLocked()
	s.demoFabricated = false
}

// --- timers -----------------------------------------------------------------

// afterLocked arms a one-shot timer whose callback runs under the session
// lock and only if no transition has cancelled its generation. Callers must
// hold the lock.
func (s *Session) afterLocked(d time.Duration, fn func()) {
	gen := s.timerGen
	t := s.Clock.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.timerGen {
			return // cancelled by a transition after firing
		}
		fn()
	})
	s.timers = append(s.timers, t)
}

// cancelTimersLocked synchronously stops every pending timer and the poll
// loop, and invalidates callbacks already in flight. Called at every phase
// transition and on reset/shutdown so no stale callback can fire into a
// later round's state.
func (s *Session) cancelTimersLocked() {
	s.timerGen++
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

// Close shuts the session down. For symmetry with reset; transports should
// call it when the process exits.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimersLocked()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
