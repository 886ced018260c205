// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hshokrig/chicken-vault/internal/ai"
	"github.com/hshokrig/chicken-vault/internal/auth"
	"github.com/hshokrig/chicken-vault/internal/cards"
	"github.com/hshokrig/chicken-vault/internal/engine"
	"github.com/hshokrig/chicken-vault/internal/workbook"
)

// APIServer holds the session and everything the HTTP surface needs. One
// process hosts one session; the dealer's browser is the only client that
// issues commands.
type APIServer struct {
	Session    *engine.Session
	Keys       *auth.Keys
	DealerHash string // argon2id hash of the dealer passphrase; empty disables auth
	Logger     *logrus.Logger

	// Transcriber turns dealer voice clips into transcripts before analysis;
	// nil means JSON transcripts only.
	Transcriber ai.Transcriber
}

func NewAPIServer(session *engine.Session, keys *auth.Keys, dealerHash string, logger *logrus.Logger) *APIServer {
	return &APIServer{Session: session, Keys: keys, DealerHash: dealerHash, Logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps engine errors onto HTTP statuses. Wrong-phase and
// wrong-turn commands are conflicts, not client bugs: two dealers clicking at
// once is an expected race, not an exception.
func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	var pe *engine.PhaseError
	status := http.StatusBadRequest
	switch {
	case errors.As(err, &pe), errors.Is(err, engine.ErrNotYourTurn):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrUnknownPlayer):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAnalyzerUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, workbook.ErrPathMissing), errors.Is(err, workbook.ErrNoPath):
		status = http.StatusBadGateway
	case errors.Is(err, engine.ErrNotEnoughPlayers),
		errors.Is(err, engine.ErrPreflightIncomplete),
		errors.Is(err, engine.ErrWorkbookNotReady),
		errors.Is(err, engine.ErrInsiderDisabled),
		errors.Is(err, engine.ErrBadAnswer),
		errors.Is(err, engine.ErrBadReorder),
		errors.Is(err, engine.ErrEmptyName),
		errors.Is(err, engine.ErrBadConfig),
		errors.Is(err, cards.ErrInvalidCard):
		status = http.StatusBadRequest
	default:
		// Workbook I/O failures surface here (lock retries exhausted).
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// extractCookieToken extracts a named cookie value from the "Cookie" header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// bearerOrCookie pulls a token from the Authorization header or the
// dealer_token cookie.
func bearerOrCookie(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return extractCookieToken(r.Header.Get("Cookie"), "dealer_token")
}

// RequireDealer gates a handler behind dealer authentication. When no
// passphrase is configured the gate is open (local single-laptop setups).
func (s *APIServer) RequireDealer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.DealerHash == "" {
			next(w, r)
			return
		}
		token := bearerOrCookie(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing dealer token"})
			return
		}
		if err := s.Keys.Authenticate(token); err != nil {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid dealer token"})
			return
		}
		next(w, r)
	}
}

type loginRequest struct {
	Passphrase string `json:"passphrase"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler exchanges the dealer passphrase for a session token. The token
// is also set as an HttpOnly cookie.
func (s *APIServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if s.DealerHash == "" {
		writeJSON(w, http.StatusOK, loginResponse{})
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}
	ok, err := auth.VerifyPassphrase(req.Passphrase, s.DealerHash)
	if err != nil || !ok {
		s.Logger.Warnf("dealer login failed from %s", r.RemoteAddr)
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "authentication failed"})
		return
	}
	token, err := s.Keys.CreateToken()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create token"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "dealer_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
