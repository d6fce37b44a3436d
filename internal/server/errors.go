package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
)

var (
	errBadRequest   = errors.New("malformed request body")
	errUnauthorized = errors.New("token has no subject")
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps domain errors to HTTP responses. The first match wins.
var errorTable = []errorMapping{
	{game.ErrGameNotFunded, http.StatusConflict, "game_not_funded"},
	{game.ErrGameMustNotBeStarted, http.StatusConflict, "game_must_not_be_started"},
	{game.ErrGameMustBeStarted, http.StatusConflict, "game_must_be_started"},
	{game.ErrPlayerHandMustBeAPair, http.StatusConflict, "player_hand_must_be_a_pair"},
	{deck.ErrEmptyDeck, http.StatusConflict, "empty_deck"},
	{ledger.ErrInsufficientPoolCollateral, http.StatusConflict, "insufficient_pool_collateral"},
	{ledger.ErrInsufficientAvailableProceeds, http.StatusConflict, "insufficient_available_proceeds"},
	{ledger.ErrInsufficientPoolBalance, http.StatusConflict, "insufficient_pool_balance"},

	{game.ErrWrongAmountToDoubleWager, http.StatusBadRequest, "wrong_amount_to_double_wager"},
	{ledger.ErrZeroAmount, http.StatusBadRequest, "zero_amount"},
	{ledger.ErrAmountOverflow, http.StatusBadRequest, "amount_overflow"},
	{deck.ErrInvalidSeed, http.StatusBadRequest, "invalid_seed"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},

	{ledger.ErrOnlyOwner, http.StatusForbidden, "only_owner"},
	{oracle.ErrUntrustedOracle, http.StatusForbidden, "untrusted_oracle"},
	{errUnauthorized, http.StatusUnauthorized, "unauthorized"},

	{oracle.ErrNoSuchRequest, http.StatusNotFound, "no_such_request"},
	{ledger.ErrUnknownAccount, http.StatusNotFound, "unknown_account"},

	{oracle.ErrCoordinatorClosed, http.StatusServiceUnavailable, "oracle_unavailable"},
	{oracle.ErrMockClosed, http.StatusServiceUnavailable, "oracle_unavailable"},
}

// statusFor returns the HTTP status and error code for err
func statusFor(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // Ignore write errors, the client has gone
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "code", code)
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: err.Error()})
}
