// Package viseme maps acoustic features to mouth shapes.
package viseme

import (
	"fmt"
	"strings"
)

// Viseme is a visually distinct mouth shape chosen per audio frame.
type Viseme int

// The closed viseme set.
const (
	Silence Viseme = iota
	A
	I
	U
	E
	O
	Consonant
	Sibilant
	MN
	Plosive
)

// All lists every viseme in declaration order.
var All = []Viseme{Silence, A, I, U, E, O, Consonant, Sibilant, MN, Plosive}

var labels = [...]string{
	Silence:   "silence",
	A:         "a",
	I:         "i",
	U:         "u",
	E:         "e",
	O:         "o",
	Consonant: "consonant",
	Sibilant:  "sibilant",
	MN:        "m_n",
	Plosive:   "plosive",
}

// String returns the wire label, e.g. "m_n".
func (v Viseme) String() string {
	if v < 0 || int(v) >= len(labels) {
		return fmt.Sprintf("viseme(%d)", int(v))
	}
	return labels[v]
}

// DisplayName returns the human readable name of the viseme.
func (v Viseme) DisplayName() string {
	if v < 0 || int(v) >= len(presets) {
		return v.String()
	}
	return presets[v].DisplayName
}

// MarshalText implements encoding.TextMarshaler.
func (v Viseme) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Viseme) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// Parse maps a wire label to a Viseme. Matching ignores case and
// surrounding whitespace.
func Parse(s string) (Viseme, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, l := range labels {
		if l == s {
			return Viseme(i), nil
		}
	}
	return Silence, fmt.Errorf("unknown viseme %q", s)
}
