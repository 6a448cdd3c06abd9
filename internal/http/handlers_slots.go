package http

import (
	"net/http"
	"strconv"

	"slotledger/internal/core"
	"slotledger/internal/log"
	"slotledger/internal/transfer"
)

// slotProposalRequest names a catalog slot by slotId (its catalog id) or by
// categoryCode. Custom slots carry customName instead.
type slotProposalRequest struct {
	SlotID        int64      `json:"slotId"`
	CategoryCode  string     `json:"categoryCode"`
	CustomName    string     `json:"customName"`
	InitialBudget core.Money `json:"initialBudget"`
	IsCustom      bool       `json:"isCustom"`
	IsSaving      bool       `json:"isSaving"`
}

func (p slotProposalRequest) toProposal() transfer.SlotProposal {
	return transfer.SlotProposal{
		CategoryID:    p.SlotID,
		CategoryCode:  sanitizeInput(p.CategoryCode),
		CustomName:    sanitizeInput(p.CustomName),
		InitialBudget: p.InitialBudget,
		IsCustom:      p.IsCustom,
		IsSaving:      p.IsSaving,
	}
}

type commitRequest struct {
	Slots []slotProposalRequest `json:"slots"`
}

type budgetRequest struct {
	FromSlotID   *int64     `json:"fromSlotId"`
	Delta        core.Money `json:"delta"`
	Acknowledged bool       `json:"acknowledged"`
}

type reallocateResponse struct {
	RequiresConfirmation bool              `json:"requiresConfirmation"`
	Reconciliation       reconciliationDTO `json:"reconciliation"`
}

type createSlotResponse struct {
	Slot           slotDTO           `json:"slot"`
	Reconciliation reconciliationDTO `json:"reconciliation"`
}

type dailySpendingResponse struct {
	AccountID int64           `json:"accountId"`
	SlotID    int64           `json:"slotId"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Days      []dailySpendDTO `json:"days"`
}

// handleListSlots returns the reconciled slots, Uncategorized included.
func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}
	rec, err := s.query.ListSlots(r.Context(), accountID)
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(toReconciliationDTO(rec)).Write(w)
}

// handleCommitSlots installs the initial slot set from a recommendation.
func (s *Server) handleCommitSlots(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpCommit, err)
		return
	}
	var req commitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(r.Context(), w, log.OpCommit, err)
		return
	}
	proposal := make([]transfer.SlotProposal, 0, len(req.Slots))
	for _, p := range req.Slots {
		proposal = append(proposal, p.toProposal())
	}

	rec, err := s.engine.CommitSlots(r.Context(), accountID, proposal)
	if err != nil {
		s.writeError(r.Context(), w, log.OpCommit, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toReconciliationDTO(rec)).Write(w)
}

func (s *Server) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpCreate, err)
		return
	}
	var req slotProposalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(r.Context(), w, log.OpCreate, err)
		return
	}

	slot, rec, err := s.engine.CreateSlot(r.Context(), accountID, req.toProposal())
	if err != nil {
		s.writeError(r.Context(), w, log.OpCreate, err)
		return
	}
	view, _ := rec.Find(slot.ID)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/accounts/"+strconv.FormatInt(int64(accountID), 10)+"/slots/"+strconv.FormatInt(int64(slot.ID), 10)).
		Body(createSlotResponse{Slot: toSlotDTO(view), Reconciliation: toReconciliationDTO(rec)}).
		Write(w)
}

func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpDelete, err)
		return
	}
	slotID, err := pathSlotID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpDelete, err)
		return
	}
	rec, err := s.engine.DeleteSlot(r.Context(), accountID, slotID)
	if err != nil {
		s.writeError(r.Context(), w, log.OpDelete, err)
		return
	}
	NewJSONResponse().Body(toReconciliationDTO(rec)).Write(w)
}

// handleReallocateBudget moves budget from fromSlotId into the path slot.
// A move into a saving slot or Uncategorized without acknowledgment is
// answered with 202 and requiresConfirmation; nothing is written.
func (s *Server) handleReallocateBudget(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpReallocate, err)
		return
	}
	target, err := pathSlotID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpReallocate, err)
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(r.Context(), w, log.OpReallocate, err)
		return
	}
	if req.FromSlotID == nil {
		s.writeError(r.Context(), w, log.OpReallocate, malformed("fromSlotId is required"))
		return
	}

	res, err := s.engine.ReallocateBudget(r.Context(), transfer.ReallocateRequest{
		AccountID:    accountID,
		From:         core.SlotID(*req.FromSlotID),
		To:           target,
		Delta:        req.Delta,
		Acknowledged: req.Acknowledged,
	})
	if err != nil {
		s.writeError(r.Context(), w, log.OpReallocate, err)
		return
	}
	status := http.StatusOK
	if res.RequiresConfirmation {
		status = http.StatusAccepted
	}
	NewJSONResponse().
		Status(status).
		Body(reallocateResponse{
			RequiresConfirmation: res.RequiresConfirmation,
			Reconciliation:       toReconciliationDTO(res.Reconciliation),
		}).
		Write(w)
}

func (s *Server) handleDailySpending(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}
	slotID, err := pathSlotID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}
	from, to, err := parsePeriod(r, s.now())
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}

	series, err := s.query.DailySpending(r.Context(), accountID, slotID, from, to)
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}
	resp := dailySpendingResponse{
		AccountID: int64(accountID),
		SlotID:    int64(slotID),
		From:      from.Format("2006-01-02"),
		To:        to.Format("2006-01-02"),
		Days:      make([]dailySpendDTO, 0, series.Days()),
	}
	for d := range series.All() {
		resp.Days = append(resp.Days, toDailySpendDTO(d))
	}
	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleSlotHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}
	slotID, err := pathSlotID(r)
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}
	entries, err := s.query.History(r.Context(), accountID, slotID)
	if err != nil {
		s.writeError(r.Context(), w, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"accountId": int64(accountID),
		"slotId":    int64(slotID),
		"entries":   toHistoryDTOs(entries),
	}).Write(w)
}
