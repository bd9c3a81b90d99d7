package astro

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Solar elevation angles, in degrees, of the usual twilight definitions.
const (
	Civil        = -6.0
	Nautical     = -12.0
	Astronomical = -18.0
)

// ParseHorizon accepts a twilight name or a plain angle in degrees.
func ParseHorizon(s string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "civil":
		return Civil, nil
	case "", "nautical":
		return Nautical, nil
	case "astronomical":
		return Astronomical, nil
	}

	deg, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("horizon %q is neither civil, nautical, astronomical nor a number of degrees", s)
	}
	if math.IsNaN(deg) || deg <= -90 || deg > 0 {
		return 0, fmt.Errorf("horizon %.2f must be in (-90, 0] degrees", deg)
	}
	return deg, nil
}

// Dip is the depression of the visible horizon, in degrees, for an observer
// elevationMeters above the surrounding terrain.
func Dip(elevationMeters float64) float64 {
	if elevationMeters <= 0 {
		return 0
	}
	return 1.76 * math.Sqrt(elevationMeters) / 60
}
