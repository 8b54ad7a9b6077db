// Package fighter handles fighter symbol validation and the cosmetic
// roster served to presentation clients. Fighters have no mechanical
// effect on outcomes; the symbol only selects artwork.
package fighter

import (
	"errors"
	"fmt"
	"regexp"
)

// symbolRegex matches ticker-style fighter symbols: BONK, WIF, POPCAT.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// ErrInvalidSymbol is returned when a fighter symbol is empty or not in
// ticker format.
var ErrInvalidSymbol = errors.New("fighter: invalid symbol")

// Fighter is one roster entry.
type Fighter struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// roster is the built-in fighter lineup. Symbols outside the roster are
// still accepted at battle creation — the roster is display metadata,
// not a constraint.
var roster = []Fighter{
	{Symbol: "BONK", Name: "Bonk"},
	{Symbol: "WIF", Name: "dogwifhat"},
	{Symbol: "POPCAT", Name: "Popcat"},
	{Symbol: "PEPE", Name: "Pepe"},
	{Symbol: "MEW", Name: "cat in a dogs world"},
	{Symbol: "BRETT", Name: "Brett"},
	{Symbol: "MYRO", Name: "Myro"},
	{Symbol: "SLERF", Name: "Slerf"},
}

// ValidateSymbol checks that a symbol is well-formed.
func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return fmt.Errorf("%w: %q (expected 2-10 uppercase alphanumerics)", ErrInvalidSymbol, symbol)
	}
	return nil
}

// Roster returns a copy of the fighter lineup.
func Roster() []Fighter {
	out := make([]Fighter, len(roster))
	copy(out, roster)
	return out
}
