package http

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"tueje/internal/core"
	"tueje/internal/currency"
	"tueje/internal/services"
)

type advisorResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleAdvisor(w http.ResponseWriter, r *http.Request) {
	var req services.AdviceRequest
	if !bindJSON(w, r, &req) {
		return
	}
	if req.Lang == "" {
		req.Lang = r.Header.Get("Accept-Language")
	}
	text, err := s.deps.Advisor.Ask(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(advisorResponse{Response: text}).Write(w)
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.deps.Rates.Rates(r.Context(), r.URL.Query().Get("base"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(rates).Write(w)
}

type conversionResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Result    decimal.Decimal `json:"result"`
	Formatted string          `json:"formatted"`
	Fallback  bool            `json:"fallback"`
}

// handleConvert converts ?amount= between ?from= and ?to= using rates
// relative to USD.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := core.ParseAmount(q.Get("amount"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	from := strings.ToUpper(strings.TrimSpace(q.Get("from")))
	to := strings.ToUpper(strings.TrimSpace(q.Get("to")))
	if _, ok := currency.Lookup(from); !ok {
		UnprocessableEntityError("unknown currency: " + from).Write(w)
		return
	}
	if _, ok := currency.Lookup(to); !ok {
		UnprocessableEntityError("unknown currency: " + to).Write(w)
		return
	}

	rates, err := s.deps.Rates.Rates(r.Context(), "USD")
	if err != nil {
		writeError(w, r, err)
		return
	}
	result := currency.Convert(amount, from, to, rates.Rates)
	NewJSONResponse().Body(conversionResponse{
		Amount:    amount,
		From:      from,
		To:        to,
		Result:    result,
		Formatted: currency.Symbol(to) + core.FormatAmount(result),
		Fallback:  rates.Fallback,
	}).Write(w)
}

func (s *Server) handleKnownCurrencies(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(currency.Known).Write(w)
}
