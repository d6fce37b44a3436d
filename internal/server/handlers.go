package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
)

const maxBodySize = 4096

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.PoolSnapshot())
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Accounts())
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, s.engine.Snapshot(id))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Stats())
}

// action runs fn for the authenticated caller and replies with the caller's
// snapshot
func (s *Server) action(fn func(ctx context.Context, account ledger.AccountID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := caller(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := fn(r.Context(), account); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.engine.Snapshot(account))
	}
}

// amountAction is action for operations that carry an amount in the body
func (s *Server) amountAction(fn func(ctx context.Context, account ledger.AccountID, amount ledger.Amount) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AmountRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.action(func(ctx context.Context, account ledger.AccountID) error {
			return fn(ctx, account, ledger.Amount(req.Amount))
		})(w, r)
	}
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	s.amountAction(s.engine.Fund)(w, r)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	account, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.engine.Start(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StartResponse{
		RequestID: uint64(id),
		Account:   s.engine.Snapshot(account),
	})
}

func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	s.action(s.engine.Hit)(w, r)
}

func (s *Server) handleStand(w http.ResponseWriter, r *http.Request) {
	s.action(s.engine.Stand)(w, r)
}

func (s *Server) handleDouble(w http.ResponseWriter, r *http.Request) {
	s.amountAction(s.engine.DoubleDown)(w, r)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	s.amountAction(s.engine.Split)(w, r)
}

func (s *Server) handleSurrender(w http.ResponseWriter, r *http.Request) {
	s.action(s.engine.Surrender)(w, r)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	account, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.engine.WithdrawToPlayer(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{
		Amount:  uint64(amount),
		Account: s.engine.Snapshot(account),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.ownerAction(s.engine.Deposit)(w, r)
}

func (s *Server) handleOwnerWithdraw(w http.ResponseWriter, r *http.Request) {
	s.ownerAction(s.engine.WithdrawToOwner)(w, r)
}

// ownerAction replies with the pool rather than an account snapshot
func (s *Server) ownerAction(fn func(ctx context.Context, caller ledger.AccountID, amount ledger.Amount) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AmountRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		account, err := caller(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := fn(r.Context(), account, ledger.Amount(req.Amount)); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.engine.PoolSnapshot())
	}
}

// handleFulfil lets the owner play the oracle when the mock coordinator is in use
func (s *Server) handleFulfil(w http.ResponseWriter, r *http.Request) {
	var req FulfilRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if account != s.engine.Owner() {
		s.writeError(w, r, ledger.ErrOnlyOwner)
		return
	}
	word, err := oracle.ParseWord(req.Word)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := s.cfg.Mock.Fulfill(oracle.RequestID(req.RequestID), word); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.PoolSnapshot())
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}
