// Package currency fetches exchange rates and converts amounts between the
// currencies the app displays.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Flag   string `json:"flag"`
}

var ErrUnknownCurrency = errors.New("unknown currency")

// Known lists the currencies offered in the UI.
var Known = []Currency{
	{Code: "USD", Name: "US Dollar", Symbol: "$", Flag: "🇺🇸"},
	{Code: "EUR", Name: "Euro", Symbol: "€", Flag: "🇪🇺"},
	{Code: "CLP", Name: "Chilean Peso", Symbol: "$", Flag: "🇨🇱"},
	{Code: "ARS", Name: "Argentine Peso", Symbol: "$", Flag: "🇦🇷"},
}

// Lookup finds a known currency by code.
func Lookup(code string) (Currency, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range Known {
		if c.Code == code {
			return c, true
		}
	}
	return Currency{}, false
}

// Symbol returns the display symbol, or the code itself when unknown.
func Symbol(code string) string {
	if c, ok := Lookup(code); ok {
		return c.Symbol
	}
	return code
}

// DefaultRates is served whenever the rates provider cannot be reached.
func DefaultRates() map[string]float64 {
	return map[string]float64{"USD": 1, "EUR": 0.9, "CLP": 950, "ARS": 360}
}

// DefaultRatesFor rebases the default table onto a known base currency.
func DefaultRatesFor(base string) (map[string]float64, error) {
	table := DefaultRates()
	pivot, ok := table[strings.ToUpper(base)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCurrency, base)
	}
	for code, r := range table {
		table[code] = r / pivot
	}
	return table, nil
}

// Convert normalizes amount through the rates' base currency. Missing rates
// count as 1; identical currencies or an empty table return amount unchanged.
func Convert(amount decimal.Decimal, from, to string, rates map[string]float64) decimal.Decimal {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to || len(rates) == 0 {
		return amount
	}
	inBase := amount.Div(rateOrOne(rates, from))
	return inBase.Mul(rateOrOne(rates, to)).Round(2)
}

func rateOrOne(rates map[string]float64, code string) decimal.Decimal {
	if r, ok := rates[code]; ok && r > 0 {
		return decimal.NewFromFloat(r)
	}
	return decimal.NewFromInt(1)
}
