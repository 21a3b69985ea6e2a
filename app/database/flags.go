package database

import (
	"errors"
	"fmt"
)

// FlagColor identifies one of the fixed post flag colors. The integer values
// are persisted in the flags table and must never be renumbered.
type FlagColor int

const (
	// FlagGray is the "no flag" sentinel. It is never stored.
	FlagGray FlagColor = iota
	FlagBlue
	FlagGreen
	FlagYellow
	FlagOrange
	FlagRed
	FlagPurple
)

// ErrInvalidFlagColor is returned when a name or ID does not map to a known
// flag color.
var ErrInvalidFlagColor = errors.New("invalid flag color")

var flagNames = map[FlagColor]string{
	FlagGray:   "gray",
	FlagBlue:   "blue",
	FlagGreen:  "green",
	FlagYellow: "yellow",
	FlagOrange: "orange",
	FlagRed:    "red",
	FlagPurple: "purple",
}

var flagsByName = func() map[string]FlagColor {
	m := make(map[string]FlagColor, len(flagNames))
	for color, name := range flagNames {
		m[name] = color
	}
	return m
}()

// Name returns the lowercase color name, or "gray" for unknown values.
func (c FlagColor) Name() string {
	if name, ok := flagNames[c]; ok {
		return name
	}
	return flagNames[FlagGray]
}

// Valid reports whether c is one of the fixed colors, sentinel included.
func (c FlagColor) Valid() bool {
	_, ok := flagNames[c]
	return ok
}

// FlagColorFromName resolves a lowercase color name.
func FlagColorFromName(name string) (FlagColor, error) {
	color, ok := flagsByName[name]
	if !ok {
		return FlagGray, fmt.Errorf("%w: %q", ErrInvalidFlagColor, name)
	}
	return color, nil
}

// AllFlagColors lists the persistable colors, sentinel excluded.
func AllFlagColors() []FlagColor {
	return []FlagColor{FlagBlue, FlagGreen, FlagYellow, FlagOrange, FlagRed, FlagPurple}
}
