package models

import "fmt"

// Location is the observer position used for every twilight computation.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Elevation float64 `json:"elevation" yaml:"elevation"` // meters above sea level
}

func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %.4f out of range [-90, 90]", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %.4f out of range [-180, 180]", l.Longitude)
	}
	if l.Latitude == 0 && l.Longitude == 0 {
		return fmt.Errorf("location coordinates must be configured (latitude and longitude)")
	}
	if l.Elevation < 0 {
		return fmt.Errorf("elevation %.1f must not be negative", l.Elevation)
	}
	return nil
}

func (l Location) String() string {
	return fmt.Sprintf("%.4f, %.4f (%.0f m)", l.Latitude, l.Longitude, l.Elevation)
}
