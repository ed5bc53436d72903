package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tueje/internal/core"
	"tueje/internal/services"
	"tueje/internal/stats"
)

type transactionRequest struct {
	Type        core.TransactionKind `json:"type"`
	Category    core.Category        `json:"category"`
	Amount      flexAmount           `json:"amount"`
	Description string               `json:"description"`
	Date        flexDate             `json:"date"`
}

func (req transactionRequest) input() services.TransactionInput {
	return services.TransactionInput{
		Type:        req.Type,
		Category:    req.Category,
		Amount:      req.Amount.Decimal,
		Description: sanitizeInput(req.Description),
		Date:        req.Date.Date,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Finance.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(nonNil(txs)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !bindJSON(w, r, &req) {
		return
	}
	t, err := s.deps.Finance.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Changed().Body(t).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !bindJSON(w, r, &req) {
		return
	}
	t, err := s.deps.Finance.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Changed().Body(t).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Finance.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Changed().Write(w)
}

func (s *Server) handleFinanceSummary(w http.ResponseWriter, r *http.Request) {
	window, err := stats.ParseWindow(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := s.deps.Finance.Overview(r.Context(), window)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o.ByCategory = nonNil(o.ByCategory)
	o.Balance = nonNil(o.Balance)
	o.Monthly = nonNil(o.Monthly)
	NewJSONResponse().Body(o).Write(w)
}
