package astro

import (
	"fmt"
	"time"
	_ "time/tzdata" // allsky hosts often ship without zoneinfo
)

const displayLayout = "2006-01-02 15:04:05 MST"

// Display renders UTC instants in the deployment's time zone. It is only
// used for logs and status output, never for scheduling.
type Display struct {
	loc *time.Location
}

func NewDisplay(zone string) (Display, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Display{}, fmt.Errorf("failed to load time zone %q: %w", zone, err)
	}
	return Display{loc: loc}, nil
}

func (d Display) Location() *time.Location {
	if d.loc == nil {
		return time.UTC
	}
	return d.loc
}

func (d Display) ToLocalDisplay(utc time.Time) time.Time {
	return utc.In(d.Location())
}

func (d Display) Format(utc time.Time) string {
	if utc.IsZero() {
		return "-"
	}
	return d.ToLocalDisplay(utc).Format(displayLayout)
}
