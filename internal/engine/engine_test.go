// internal/engine/engine_test.go
package engine

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hshokrig/chicken-vault/internal/models"
	"github.com/hshokrig/chicken-vault/internal/workbook"
)

// stubWorkbook is an in-memory WorkbookPort. Rows served by ReadSnapshot come
// from the rows func when set, otherwise from submissions recorded through
// WriteSubmission.
type stubWorkbook struct {
	mu        sync.Mutex
	initCalls int
	prepared  []string
	acks      []workbook.Ack
	written   map[uuid.UUID]workbook.Row
	rows      func(players []models.Player, round int) map[uuid.UUID]workbook.Row
	alerts    []models.Alert
	readErr   error
	initErr   error
	retries   int
	mtime     time.Time
}

func newStubWorkbook() *stubWorkbook {
	return &stubWorkbook{written: make(map[uuid.UUID]workbook.Row)}
}

func (w *stubWorkbook) Path() string { return "/tmp/test.xlsx" }

func (w *stubWorkbook) InitializeForPlayers(players []models.Player) ([]models.Player, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.initCalls++
	if w.initErr != nil {
		return nil, w.initErr
	}
	return workbook.AssignSheetNames(players), nil
}

func (w *stubWorkbook) PrepareScoringRound(players []models.Player, round int, code string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prepared = append(w.prepared, code)
	return nil
}

func (w *stubWorkbook) ReadSnapshot(players []models.Player, round int) (*workbook.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil {
		return nil, w.readErr
	}
	snap := &workbook.Snapshot{MTime: w.mtime, Retries: w.retries, Rows: make(map[uuid.UUID]workbook.Row)}
	if w.rows != nil {
		snap.Rows = w.rows(players, round)
		return snap, nil
	}
	for id, row := range w.written {
		snap.Rows[id] = row
	}
	return snap, nil
}

func (w *stubWorkbook) DetectAlerts(lastKnownMTime time.Time, scoringActive bool) []models.Alert {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alerts
}

func (w *stubWorkbook) WriteAcknowledgements(acks []workbook.Ack) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acks = append(w.acks, acks...)
	return nil
}

func (w *stubWorkbook) WriteSubmission(p models.Player, round int, code, level, guess string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written[p.ID] = workbook.Row{Round: round, Code: code, Level: level, Guess: guess}
	return nil
}

func testConfig() models.GameConfig {
	cfg := models.DefaultGameConfig("/tmp/test.xlsx")
	cfg.VaultStart = 4
	return cfg
}

// newTestSession builds a session on a fake clock with the given players
// seated and the workbook initialized, still in LOBBY.
func newTestSession(t *testing.T, names ...string) (*Session, *stubWorkbook, *clockwork.FakeClock) {
	t.Helper()
	wb := newStubWorkbook()
	s, err := NewSession(testConfig(), wb, nil)
	require.NoError(t, err)
	fc := clockwork.NewFakeClock()
	s.Clock = fc
	for _, name := range names {
		_, err := s.AddPlayer(name, "")
		require.NoError(t, err)
	}
	if len(names) > 0 {
		_, err := s.SetPreflight(true, true)
		require.NoError(t, err)
		_, err = s.InitializeWorkbook()
		require.NoError(t, err)
	}
	t.Cleanup(s.Close)
	return s, wb, fc
}

func startedSession(t *testing.T, names ...string) (*Session, *stubWorkbook, *clockwork.FakeClock) {
	t.Helper()
	s, wb, fc := newTestSession(t, names...)
	_, err := s.StartGame()
	require.NoError(t, err)
	return s, wb, fc
}

func TestSeatAfter(t *testing.T) {
	assert.Equal(t, 1, SeatAfter(0, 3))
	assert.Equal(t, 2, SeatAfter(1, 3))
	assert.Equal(t, 0, SeatAfter(2, 3))
	assert.Equal(t, 0, SeatAfter(0, 1))

	// rotation visits every seat exactly once per cycle
	seen := make(map[int]bool)
	seat := 0
	for i := 0; i < 5; i++ {
		seen[seat] = true
		seat = SeatAfter(seat, 5)
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 0, seat)
}

func TestAddPlayerAlternatesTeams(t *testing.T) {
	s, _, _ := newTestSession(t)
	for _, name := range []string{"Ann", "Bo", "Cy", "Dee"} {
		_, err := s.AddPlayer(name, "")
		require.NoError(t, err)
	}
	snap := s.SnapshotNow()
	require.Len(t, snap.Players, 4)
	assert.Equal(t, models.TeamA, snap.Players[0].Team)
	assert.Equal(t, models.TeamB, snap.Players[1].Team)
	assert.Equal(t, models.TeamA, snap.Players[2].Team)
	assert.Equal(t, models.TeamB, snap.Players[3].Team)
}

func TestAddPlayerRejectsEmptyName(t *testing.T) {
	s, _, _ := newTestSession(t)
	_, err := s.AddPlayer("   ", models.TeamA)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestPlayerMutationsLobbyOnly(t *testing.T) {
	s, _, _ := startedSession(t, "Ann", "Bo")
	_, err := s.AddPlayer("Late", models.TeamA)
	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseSetup, pe.Phase)

	_, err = s.RemovePlayer(uuid.New())
	assert.ErrorAs(t, err, &pe)
}

func TestRemovePlayerRenumbersSeats(t *testing.T) {
	s, _, _ := newTestSession(t, "Ann", "Bo", "Cy")
	snap := s.SnapshotNow()
	_, err := s.RemovePlayer(snap.Players[1].ID)
	require.NoError(t, err)

	snap = s.SnapshotNow()
	require.Len(t, snap.Players, 2)
	assert.Equal(t, 0, snap.Players[0].Seat)
	assert.Equal(t, 1, snap.Players[1].Seat)
	assert.Equal(t, "Cy", snap.Players[1].Name)
}

func TestReorderPlayersValidation(t *testing.T) {
	s, _, _ := newTestSession(t, "Ann", "Bo", "Cy")
	snap := s.SnapshotNow()
	ids := []uuid.UUID{snap.Players[2].ID, snap.Players[0].ID, snap.Players[1].ID}

	_, err := s.ReorderPlayers(ids[:2])
	assert.ErrorIs(t, err, ErrBadReorder)

	_, err = s.ReorderPlayers([]uuid.UUID{ids[0], ids[0], ids[1]})
	assert.ErrorIs(t, err, ErrBadReorder)

	got, err := s.ReorderPlayers(ids)
	require.NoError(t, err)
	assert.Equal(t, "Cy", got.Players[0].Name)
	assert.Equal(t, 0, got.Players[0].Seat)
}

func TestUpdateConfigValidatesAndKeepsPath(t *testing.T) {
	s, _, _ := newTestSession(t)
	cfg := testConfig()
	cfg.Rounds = 0
	_, err := s.UpdateConfig(cfg)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig()
	cfg.Rounds = 7
	cfg.WorkbookPath = "/somewhere/else.xlsx"
	snap, err := s.UpdateConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Config.Rounds)
	assert.Equal(t, "/tmp/test.xlsx", snap.Config.WorkbookPath)
}

func TestStartGameRequirements(t *testing.T) {
	wb := newStubWorkbook()
	s, err := NewSession(testConfig(), wb, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.StartGame()
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	_, err = s.AddPlayer("Ann", "")
	require.NoError(t, err)
	_, err = s.AddPlayer("Bo", "")
	require.NoError(t, err)

	_, err = s.StartGame()
	assert.ErrorIs(t, err, ErrPreflightIncomplete)

	_, err = s.SetPreflight(true, true)
	require.NoError(t, err)
	_, err = s.StartGame()
	assert.ErrorIs(t, err, ErrWorkbookNotReady)

	_, err = s.InitializeWorkbook()
	require.NoError(t, err)
	snap, err := s.StartGame()
	require.NoError(t, err)
	assert.Equal(t, string(PhaseSetup), snap.Phase)
	require.NotNil(t, snap.Round)
	assert.Equal(t, 1, snap.Round.Number)
	assert.Equal(t, 4, snap.Round.VaultValue)
}

func TestAddPlayerInvalidatesWorkbook(t *testing.T) {
	s, wb, _ := newTestSession(t, "Ann", "Bo")
	assert.Equal(t, 1, wb.initCalls)

	_, err := s.AddPlayer("Cy", "")
	require.NoError(t, err)

	_, err = s.StartGame()
	assert.ErrorIs(t, err, ErrWorkbookNotReady)
}

func TestDealerNeverRepeats(t *testing.T) {
	s, _, _ := newTestSession(t, "Ann", "Bo", "Cy")
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := -1
	for i := 1; i <= 50; i++ {
		s.createRoundLocked(i)
		if prev >= 0 {
			assert.NotEqual(t, prev, s.round.DealerSeat, "iteration %d", i)
		}
		prev = s.round.DealerSeat
	}
}

func TestRoundCodeFormat(t *testing.T) {
	s, _, _ := newTestSession(t, "Ann", "Bo")
	s.mu.Lock()
	defer s.mu.Unlock()
	pattern := regexp.MustCompile(`^R3-[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{4}$`)
	for i := 0; i < 20; i++ {
		code := s.roundCodeLocked(3)
		assert.Regexp(t, pattern, code)
	}
}

func TestQuestionIncrementsVaultAndAdvancesTurn(t *testing.T) {
	s, _, _ := startedSession(t, "Ann", "Bo", "Cy")
	snap, err := s.StartInvestigation()
	require.NoError(t, err)
	firstTurn := snap.Round.TurnSeat
	assert.Equal(t, SeatAfter(snap.Round.DealerSeat, 3), firstTurn)

	snap, err = s.ResolveQuestion("Is it red?", "yes")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Round.VaultValue)
	assert.Equal(t, SeatAfter(firstTurn, 3), snap.Round.TurnSeat)
	require.Len(t, snap.Round.Questions, 1)
	assert.Equal(t, "YES", snap.Round.Questions[0].Answer)
	assert.Equal(t, firstTurn, snap.Round.Questions[0].Seat)

	_, err = s.ResolveQuestion("Is it a face card?", "maybe")
	assert.ErrorIs(t, err, ErrBadAnswer)
}

func TestCallVaultOnlyCurrentTurn(t *testing.T) {
	s, _, _ := startedSession(t, "Ann", "Bo", "Cy")
	snap, err := s.StartInvestigation()
	require.NoError(t, err)

	var turnPlayer, otherPlayer models.Player
	for _, p := range snap.Players {
		if p.Seat == snap.Round.TurnSeat {
			turnPlayer = p
		} else {
			otherPlayer = p
		}
	}

	_, err = s.CallVault(otherPlayer.ID.String())
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = s.CallVault("not-a-uuid")
	assert.ErrorIs(t, err, ErrUnknownPlayer)

	snap, err = s.CallVault(turnPlayer.ID.String())
	require.NoError(t, err)
	assert.Equal(t, string(PhaseScoring), snap.Phase)
	assert.Equal(t, turnPlayer.ID.String(), snap.Round.VaultCaller)
	assert.NotEmpty(t, snap.Round.RoundCode)
}

func TestInvestigationTimerAutoCallsVault(t *testing.T) {
	s, _, fc := startedSession(t, "Ann", "Bo")
	_, err := s.StartInvestigation()
	require.NoError(t, err)

	fc.Advance(time.Duration(testConfig().InvestigationSec) * time.Second)
	require.Eventually(t, func() bool {
		return s.Phase() == PhaseScoring
	}, time.Second, 5*time.Millisecond)

	snap := s.SnapshotNow()
	assert.Equal(t, models.AutoCaller, snap.Round.VaultCaller)
}

func TestScoringTimerFinalizes(t *testing.T) {
	s, _, fc := startedSession(t, "Ann", "Bo")
	_, err := s.StartInvestigation()
	require.NoError(t, err)
	_, err = s.SetSecretCard("QD")
	// SETUP-only command; already in INVESTIGATION
	assert.Error(t, err)

	s.mu.Lock()
	s.enterScoringLocked(models.AutoCaller)
	s.mu.Unlock()

	fc.Advance(time.Duration(testConfig().ScoringSec) * time.Second)
	require.Eventually(t, func() bool {
		return s.Phase() == PhaseReveal
	}, time.Second, 5*time.Millisecond)

	snap := s.SnapshotNow()
	require.NotNil(t, snap.Round.Result)
	assert.Equal(t, FinalizeTimer, snap.Round.Result.Reason)
	// nobody submitted and the caller was AUTO, so everyone scores zero
	for _, pts := range snap.Round.Result.PointsByPlayer {
		assert.Equal(t, 0, pts)
	}
}

func TestFinalizeScoringIdempotent(t *testing.T) {
	s, _, _ := startedSession(t, "Ann", "Bo")
	_, err := s.StartInvestigation()
	require.NoError(t, err)
	s.mu.Lock()
	s.enterScoringLocked(models.AutoCaller)
	s.mu.Unlock()

	_, err = s.FinalizeScoring(FinalizeTimer)
	require.NoError(t, err)
	_, err = s.FinalizeScoring(FinalizeAllSubmitted)
	require.NoError(t, err)

	snap := s.SnapshotNow()
	assert.Equal(t, string(PhaseReveal), snap.Phase)
	assert.Len(t, snap.History, 1)
}

func TestResetCancelsPendingTimers(t *testing.T) {
	s, _, fc := startedSession(t, "Ann", "Bo")
	_, err := s.StartInvestigation()
	require.NoError(t, err)

	snap, err := s.ResetToLobby()
	require.NoError(t, err)
	assert.Equal(t, string(PhaseLobby), snap.Phase)
	assert.Equal(t, [2]bool{false, false}, snap.Preflight)

	// the investigation deadline passing must not resurrect the old round
	fc.Advance(time.Duration(testConfig().InvestigationSec+5) * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, PhaseLobby, s.Phase())
}

func TestNextRoundAdvancesAndFinishes(t *testing.T) {
	s, _, _ := startedSession(t, "Ann", "Bo")
	s.mu.Lock()
	s.cfg.Rounds = 2
	s.mu.Unlock()

	playRound := func() {
		_, err := s.StartInvestigation()
		require.NoError(t, err)
		s.mu.Lock()
		s.enterScoringLocked(models.AutoCaller)
		s.mu.Unlock()
		_, err = s.FinalizeScoring(FinalizeTimer)
		require.NoError(t, err)
	}

	playRound()
	snap, err := s.NextRound()
	require.NoError(t, err)
	assert.Equal(t, string(PhaseSetup), snap.Phase)
	assert.Equal(t, 2, snap.Round.Number)

	playRound()
	snap, err = s.NextRound()
	require.NoError(t, err)
	assert.Equal(t, string(PhaseDone), snap.Phase)
	assert.Len(t, snap.History, 2)
}

func TestSnapshotNeverExposesSecret(t *testing.T) {
	s, _, _ := startedSession(t, "Ann", "Bo")
	_, err := s.SetSecretCard("QD")
	require.NoError(t, err)
	snap, err := s.StartInvestigation()
	require.NoError(t, err)

	// the secret surfaces only in the finalized summary, never mid-round
	assert.Nil(t, snap.Round.Result)
	for _, h := range snap.History {
		assert.Empty(t, h.SecretCard)
	}
}

func TestInsiderRevealedOnlyInSummary(t *testing.T) {
	s, _, _ := newTestSession(t, "Ann", "Bo")
	_, err := s.PickInsider(uuid.New())
	var pe *PhaseError
	require.ErrorAs(t, err, &pe) // still in LOBBY

	_, err = s.StartGame()
	require.NoError(t, err)

	snap := s.SnapshotNow()
	_, err = s.PickInsider(snap.Players[0].ID)
	assert.ErrorIs(t, err, ErrInsiderDisabled)

	s.mu.Lock()
	s.cfg.InsiderEnabled = true
	s.mu.Unlock()

	_, err = s.PickInsider(uuid.New())
	assert.ErrorIs(t, err, ErrUnknownPlayer)
	_, err = s.PickInsider(snap.Players[1].ID)
	require.NoError(t, err)

	_, err = s.StartInvestigation()
	require.NoError(t, err)
	s.mu.Lock()
	s.enterScoringLocked(models.AutoCaller)
	s.mu.Unlock()
	_, err = s.FinalizeScoring(FinalizeTimer)
	require.NoError(t, err)

	snap = s.SnapshotNow()
	require.NotNil(t, snap.Round.Result)
	assert.Equal(t, snap.Players[1].ID.String(), snap.Round.Result.Insider)
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	s, _, _ := newTestSession(t, "Ann", "Bo")
	ch, cancel := s.Subscribe()
	defer cancel()

	seed := <-ch
	assert.Equal(t, string(PhaseLobby), seed.Phase)

	_, err := s.StartGame()
	require.NoError(t, err)

	var got models.Snapshot
	require.Eventually(t, func() bool {
		select {
		case got = <-ch:
			return got.Phase == string(PhaseSetup)
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestNewSessionRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.PollIntervalSec = 0
	_, err := NewSession(cfg, newStubWorkbook(), nil)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig()
	cfg.Rounds = 0
	_, err = NewSession(cfg, newStubWorkbook(), nil)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig()
	cfg.VaultStart = -1
	_, err = NewSession(cfg, newStubWorkbook(), nil)
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestSetupOverridesNotifySubscribers(t *testing.T) {
	s, _, _ := startedSession(t, "Ann", "Bo")
	s.mu.Lock()
	s.cfg.InsiderEnabled = true
	s.mu.Unlock()

	ch, cancel := s.Subscribe()
	defer cancel()
	seed := <-ch
	require.Equal(t, string(PhaseSetup), seed.Phase)

	_, err := s.SetSecretCard("QD")
	require.NoError(t, err)
	select {
	case <-ch:
	default:
		t.Fatal("no snapshot pushed after setting the secret card")
	}

	_, err = s.PickInsider(seed.Players[0].ID)
	require.NoError(t, err)
	select {
	case <-ch:
	default:
		t.Fatal("no snapshot pushed after picking the insider")
	}
}
