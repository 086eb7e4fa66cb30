// Package emotion provides emotion presets that bias the face parameters,
// plus a coarse prosody based guess of the speaker's emotion.
package emotion

import (
	"fmt"
	"math"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Emotion is one of a closed set of expression presets.
type Emotion int

// The closed emotion set.
const (
	Neutral Emotion = iota
	Happy
	Sad
	Angry
	Surprised
	Questioning
)

// All lists every emotion in declaration order.
var All = []Emotion{Neutral, Happy, Sad, Angry, Surprised, Questioning}

var names = [...]string{
	Neutral:     "neutral",
	Happy:       "happy",
	Sad:         "sad",
	Angry:       "angry",
	Surprised:   "surprised",
	Questioning: "questioning",
}

func (e Emotion) String() string {
	if e < 0 || int(e) >= len(names) {
		return fmt.Sprintf("emotion(%d)", int(e))
	}
	return names[e]
}

// MarshalText implements encoding.TextMarshaler.
func (e Emotion) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Emotion) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Parse maps a label to an Emotion, ignoring case and surrounding spaces.
func Parse(s string) (Emotion, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return Emotion(i), nil
		}
	}
	return Neutral, fmt.Errorf("unknown emotion %q", s)
}

// Resolve is Parse with a suggestion: when name is not a known label, the
// error names the closest label by fuzzy match, if any.
func Resolve(name string) (Emotion, error) {
	e, err := Parse(name)
	if err == nil {
		return e, nil
	}
	matches := fuzzy.Find(strings.ToLower(strings.TrimSpace(name)), names[:])
	if len(matches) > 0 {
		return Neutral, fmt.Errorf("%w (did you mean %q?)", err, matches[0].Str)
	}
	return Neutral, fmt.Errorf("%w (available: %s)", err, strings.Join(names[:], ", "))
}

// Delta is an additive bias on the expression channels.
type Delta struct {
	MouthSmile float64
	EyeBrowUp  float64
	EyeWide    float64
}

var presets = [...]Delta{
	Neutral:     {0, 0, 0},
	Happy:       {0.6, 0.1, 0},
	Sad:         {-0.4, -0.3, 0},
	Angry:       {-0.3, -0.5, 0.2},
	Surprised:   {0, 0.7, 0.8},
	Questioning: {0.2, 0.4, 0.1},
}

// Bias returns the preset for e scaled by intensity, which is clamped to
// [0, 1]. Unknown emotions have no bias.
func Bias(e Emotion, intensity float64) Delta {
	if e < 0 || int(e) >= len(presets) {
		return Delta{}
	}
	k := ClampIntensity(intensity)
	p := presets[e]
	return Delta{
		MouthSmile: p.MouthSmile * k,
		EyeBrowUp:  p.EyeBrowUp * k,
		EyeWide:    p.EyeWide * k,
	}
}

// ClampIntensity limits intensity to [0, 1]. NaN maps to 0.
func ClampIntensity(intensity float64) float64 {
	if math.IsNaN(intensity) {
		return 0
	}
	return math.Max(0, math.Min(1, intensity))
}
