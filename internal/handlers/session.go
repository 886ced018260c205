// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hshokrig/chicken-vault/internal/models"
)

type playerAddRequest struct {
	Name string      `json:"name"`
	Team models.Team `json:"team,omitempty"`
}

// AddPlayerHandler seats a new player.
func (s *APIServer) AddPlayerHandler(w http.ResponseWriter, r *http.Request) {
	var req playerAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.AddPlayer(req.Name, req.Team)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type playerUpdateRequest struct {
	ID   uuid.UUID   `json:"id"`
	Name string      `json:"name,omitempty"`
	Team models.Team `json:"team,omitempty"`
}

// UpdatePlayerHandler renames a player or moves them between teams.
func (s *APIServer) UpdatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	var req playerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.UpdatePlayer(req.ID, req.Name, req.Team)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type playerRemoveRequest struct {
	ID uuid.UUID `json:"id"`
}

// RemovePlayerHandler unseats a player.
func (s *APIServer) RemovePlayerHandler(w http.ResponseWriter, r *http.Request) {
	var req playerRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.RemovePlayer(req.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type reorderRequest struct {
	Order []uuid.UUID `json:"order"`
}

// ReorderPlayersHandler reseats the table in the given order.
func (s *APIServer) ReorderPlayersHandler(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.ReorderPlayers(req.Order)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// UpdateConfigHandler replaces the tunable game parameters.
func (s *APIServer) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var cfg models.GameConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.UpdateConfig(cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type preflightRequest struct {
	SyncConfirmed       bool `json:"sync_confirmed"`
	FileClosedConfirmed bool `json:"file_closed_confirmed"`
}

// PreflightHandler records the dealer's file hygiene acknowledgements.
func (s *APIServer) PreflightHandler(w http.ResponseWriter, r *http.Request) {
	var req preflightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.SetPreflight(req.SyncConfirmed, req.FileClosedConfirmed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// InitWorkbookHandler (re)creates the per-player sheets in the shared file.
func (s *APIServer) InitWorkbookHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Session.InitializeWorkbook()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StartGameHandler moves the lobby into round 1 setup.
func (s *APIServer) StartGameHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Session.StartGame()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ResetHandler aborts everything and returns to the lobby.
func (s *APIServer) ResetHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Session.ResetToLobby()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StartRealGameHandler leaves a finished demo and starts a real game with the
// human roster.
func (s *APIServer) StartRealGameHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Session.StartRealGame()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DemoHandler runs the scripted single-round walkthrough.
func (s *APIServer) DemoHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Session.RunDemo()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type cardRequest struct {
	Code string `json:"code"`
}

// SetCardHandler sets the secret card manually during setup.
func (s *APIServer) SetCardHandler(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.SetSecretCard(req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type insiderRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
}

// SetInsiderHandler picks the insider manually during setup.
func (s *APIServer) SetInsiderHandler(w http.ResponseWriter, r *http.Request) {
	var req insiderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.PickInsider(req.PlayerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StartInvestigationHandler opens the question phase.
func (s *APIServer) StartInvestigationHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Session.StartInvestigation()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type questionRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ResolveQuestionHandler records a dealer-entered question and answer.
func (s *APIServer) ResolveQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.ResolveQuestion(req.Question, req.Answer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type analyzeRequest struct {
	Transcript string `json:"transcript"`
}

// AnalyzeQuestionHandler ships a transcript through the analyzer and applies
// the decision when it is actionable. Accepts either a JSON transcript or a
// multipart "audio" file that is transcribed first.
func (s *APIServer) AnalyzeQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var transcript string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if s.Transcriber == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "transcription not configured"})
			return
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing audio file"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read audio"})
			return
		}
		transcript, err = s.Transcriber.Transcribe(r.Context(), data, header.Filename)
		if err != nil {
			s.Logger.Warnf("transcription failed: %v", err)
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "transcription failed"})
			return
		}
	} else {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
			return
		}
		transcript = req.Transcript
	}

	outcome, err := s.Session.AnalyzeQuestion(r.Context(), transcript)
	if err != nil && !outcome.Retry {
		s.writeError(w, err)
		return
	}
	if err != nil {
		s.Logger.Warnf("question analysis: %v", err)
	}
	writeJSON(w, http.StatusOK, outcome)
}

type callVaultRequest struct {
	Actor string `json:"actor"` // player UUID, or "AUTO"
}

// CallVaultHandler ends the investigation and opens scoring.
func (s *APIServer) CallVaultHandler(w http.ResponseWriter, r *http.Request) {
	var req callVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	snap, err := s.Session.CallVault(req.Actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// NextRoundHandler advances from reveal to the next round, or finishes the
// game.
func (s *APIServer) NextRoundHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Session.NextRound()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StateHandler returns the current public snapshot. Unauthenticated: the
// projector view polls this.
func (s *APIServer) StateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Session.SnapshotNow())
}
