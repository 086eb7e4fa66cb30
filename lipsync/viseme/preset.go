package viseme

import "math"

// Target is the blend-shape target for a viseme.
type Target struct {
	MouthOpen   float64
	MouthForm   float64
	MouthSmile  float64
	DisplayName string
}

var presets = [...]Target{
	A:         {0.70, 0.00, 0.05, "open [a]"},
	I:         {0.25, -0.68, 0.38, "wide [i]"},
	U:         {0.32, 0.72, -0.18, "rounded [u]"},
	E:         {0.45, -0.25, 0.18, "mid [e]"},
	O:         {0.58, 0.58, 0.00, "round [o]"},
	Consonant: {0.28, 0.00, 0.00, "consonant"},
	Sibilant:  {0.18, -0.28, 0.22, "sibilant [s]"},
	MN:        {0.06, 0.00, 0.00, "nasal [m/n]"},
	Plosive:   {0.22, 0.00, 0.00, "plosive [p/b]"},
	Silence:   {0.00, 0.00, 0.00, "silence"},
}

// Preset returns the fixed target for v. Unknown values map to silence.
func Preset(v Viseme) Target {
	if v < 0 || int(v) >= len(presets) {
		return presets[Silence]
	}
	return presets[v]
}

// Energy modulation bounds for MouthOpen.
const (
	MinEnergy = 0.3
	MaxEnergy = 1.0
)

// Modulate scales MouthOpen by rms/scale clamped to [0.3, 1.0]. Form and
// smile are left as they are.
func (t Target) Modulate(rms, scale float64) Target {
	ratio := MaxEnergy
	if scale > 0 {
		ratio = math.Max(MinEnergy, math.Min(MaxEnergy, rms/scale))
	}
	t.MouthOpen *= ratio
	return t
}
