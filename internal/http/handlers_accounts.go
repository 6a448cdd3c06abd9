package http

import (
	"net/http"
	"strconv"
	"time"

	"slotledger/internal/core"
	"slotledger/internal/log"
)

type linkRequest struct {
	BankID    string `json:"bankId"`
	AccountNo string `json:"accountNo"`
}

type balanceRequest struct {
	Balance *core.Money `json:"balance"`
	AsOf    *time.Time  `json:"asOf"`
}

type balanceResponse struct {
	Applied        bool              `json:"applied"`
	Reconciliation reconciliationDTO `json:"reconciliation"`
}

// handleLinkAccount registers a bank account. Its balance stays unknown
// until the banking feed reports one.
func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(r.Context(), w, log.OpLink, err)
		return
	}
	acc, err := s.engine.LinkAccount(r.Context(), sanitizeInput(req.BankID), sanitizeInput(req.AccountNo))
	if err != nil {
		s.writeError(r.Context(), w, log.OpLink, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/accounts/"+strconv.FormatInt(int64(acc.ID), 10)).
		Body(toAccountDTO(acc)).
		Write(w)
}

// handleApplyBalance lets an operator or the feed push a balance. Reports
// older than the stored balance are acknowledged but ignored.
func (s *Server) handleApplyBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpBalance, err)
		return
	}
	var req balanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(r.Context(), w, log.OpBalance, err)
		return
	}
	if req.Balance == nil {
		s.writeError(r.Context(), w, log.OpBalance, malformed("balance is required"))
		return
	}
	asOf := s.now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	rec, applied, err := s.engine.ApplyBalance(r.Context(), accountID, *req.Balance, asOf)
	if err != nil {
		s.writeError(r.Context(), w, log.OpBalance, err)
		return
	}
	NewJSONResponse().Body(balanceResponse{Applied: applied, Reconciliation: toReconciliationDTO(rec)}).Write(w)
}
