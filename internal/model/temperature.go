package model

import "math"

// TemperatureUnit selects how temperatures are presented to callers.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "C"
	Fahrenheit TemperatureUnit = "F"
)

// TemperatureConverter converts between the API unit (always Celsius) and
// the display unit. Composed into every resource that reports temperatures
// so the conversion rules live in one place.
type TemperatureConverter struct {
	DisplayUnit TemperatureUnit
}

// Display converts a Celsius value from the API into the display unit.
// Fahrenheit values are rounded to the nearest half degree, the smallest
// step the platform accepts.
func (c TemperatureConverter) Display(celsius float64) float64 {
	if c.DisplayUnit != Fahrenheit {
		return celsius
	}
	return roundHalf(celsius*9/5 + 32)
}

// FromDisplay converts a user-supplied value in the display unit back into
// Celsius for the API.
func (c TemperatureConverter) FromDisplay(value float64) float64 {
	if c.DisplayUnit != Fahrenheit {
		return value
	}
	return roundHalf((value - 32) * 5 / 9)
}

func roundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}
