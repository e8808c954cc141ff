package engine

const DefaultUnits = "lj"

var defaultTimesteps = map[string]float64{
	"lj":       0.005,
	"real":     1.0,
	"metal":    0.001,
	"si":       1.0e-8,
	"cgs":      1.0e-8,
	"electron": 0.001,
	"micro":    2.0,
	"nano":     0.00045,
}

// DefaultTimestep is the timestep an engine uses for a unit style until a
// timestep directive overrides it. Unknown styles return 0.
func DefaultTimestep(units string) float64 {
	return defaultTimesteps[units]
}

func knownUnits(units string) bool {
	_, ok := defaultTimesteps[units]
	return ok
}
