package http

import (
	"net/http"

	"slotledger/internal/core"
	"slotledger/internal/log"
)

type moveRequest struct {
	TargetSlotID *int64 `json:"targetSlotId"`
}

type splitRequest struct {
	ParticipantCount int `json:"participantCount"`
}

type splitResponse struct {
	Split          splitDTO          `json:"split"`
	Reconciliation reconciliationDTO `json:"reconciliation"`
}

// handleMoveTransaction reassigns a transaction to another slot.
func (s *Server) handleMoveTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpReassign, err)
		return
	}
	txID, err := pathTransactionID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpReassign, err)
		return
	}
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(r.Context(), w, log.OpReassign, err)
		return
	}
	if req.TargetSlotID == nil {
		s.writeError(r.Context(), w, log.OpReassign, malformed("targetSlotId is required"))
		return
	}

	rec, err := s.engine.ReassignTransaction(r.Context(), accountID, txID, core.SlotID(*req.TargetSlotID))
	if err != nil {
		s.writeError(r.Context(), w, log.OpReassign, err)
		return
	}
	NewJSONResponse().Body(toReconciliationDTO(rec)).Write(w)
}

// handleSplitTransaction applies a dutch-pay split to a withdrawal.
func (s *Server) handleSplitTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpSplit, err)
		return
	}
	txID, err := pathTransactionID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpSplit, err)
		return
	}
	var req splitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(r.Context(), w, log.OpSplit, err)
		return
	}

	res, err := s.engine.SplitTransaction(r.Context(), accountID, txID, req.ParticipantCount)
	if err != nil {
		s.writeError(r.Context(), w, log.OpSplit, err)
		return
	}
	NewJSONResponse().Body(splitResponse{
		Split:          toSplitDTO(res.Split),
		Reconciliation: toReconciliationDTO(res.Reconciliation),
	}).Write(w)
}
