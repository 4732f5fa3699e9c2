package model

import "testing"

func TestTemperatureConverterDisplay(t *testing.T) {
	cases := []struct {
		name    string
		unit    TemperatureUnit
		celsius float64
		want    float64
	}{
		{name: "celsius passthrough", unit: Celsius, celsius: 21.3, want: 21.3},
		{name: "fahrenheit whole", unit: Fahrenheit, celsius: 20.0, want: 68.0},
		{name: "fahrenheit rounds to half", unit: Fahrenheit, celsius: 21.8, want: 71.0},
		{name: "fahrenheit keeps half step", unit: Fahrenheit, celsius: 20.25, want: 68.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := TemperatureConverter{DisplayUnit: tc.unit}
			if got := c.Display(tc.celsius); got != tc.want {
				t.Fatalf("Display(%v) = %v, want %v", tc.celsius, got, tc.want)
			}
		})
	}
}

func TestTemperatureConverterFromDisplay(t *testing.T) {
	c := TemperatureConverter{DisplayUnit: Fahrenheit}
	if got := c.FromDisplay(68.0); got != 20.0 {
		t.Fatalf("FromDisplay(68) = %v, want 20", got)
	}
	passthrough := TemperatureConverter{DisplayUnit: Celsius}
	if got := passthrough.FromDisplay(21.3); got != 21.3 {
		t.Fatalf("FromDisplay(21.3) = %v, want passthrough", got)
	}
}

func TestThermostatTargetTemperature(t *testing.T) {
	base := Thermostat{
		Converter:     TemperatureConverter{DisplayUnit: Celsius},
		TargetHeating: 20,
		TargetCooling: 24,
	}

	heat := base
	heat.Mode = HVACModeHeat
	if got, ok := heat.TargetTemperature(); !ok || got != 20 {
		t.Fatalf("heat target = %v/%v", got, ok)
	}

	cool := base
	cool.Mode = HVACModeCool
	if got, ok := cool.TargetTemperature(); !ok || got != 24 {
		t.Fatalf("cool target = %v/%v", got, ok)
	}

	// Fan mode falls back to the previous driving mode.
	fan := base
	fan.Mode = HVACModeFan
	fan.PreviousMode = HVACModeHeat
	if got, ok := fan.TargetTemperature(); !ok || got != 20 {
		t.Fatalf("fan fallback target = %v/%v", got, ok)
	}

	auto := base
	auto.Mode = HVACModeAuto
	if _, ok := auto.TargetTemperature(); ok {
		t.Fatalf("auto mode has no single setpoint")
	}
}
