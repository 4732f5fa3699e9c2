package controller

import (
	"testing"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
)

func fanDevice(id, class string, states ...afero.State) *afero.Device {
	return &afero.Device{
		ID:          id,
		TypeID:      afero.TypeMetadevice,
		DeviceClass: class,
		States:      states,
	}
}

func TestFanControllerMatches(t *testing.T) {
	c := NewFanController(testLogger())
	for _, class := range []string{"fan", "ceiling-fan", "exhaust-fan"} {
		if !c.Matches(fanDevice("d", class)) {
			t.Fatalf("%s should match the fan controller", class)
		}
	}
	if c.Matches(fanDevice("d", "light")) {
		t.Fatalf("light should not match the fan controller")
	}
}

func TestFanControllerTracksState(t *testing.T) {
	c := NewFanController(testLogger())
	if err := c.InitializeElem(fanDevice("living", "ceiling-fan",
		afero.State{FunctionClass: "available", Value: true},
		afero.State{FunctionClass: "power", FunctionInstance: "fan-power", Value: "on"},
		afero.State{FunctionClass: "fan-speed", FunctionInstance: "fan-speed", Value: "fan-speed-6-050"},
		afero.State{FunctionClass: "fan-reverse", FunctionInstance: "fan-reverse", Value: "forward"},
		afero.State{FunctionClass: "toggle", FunctionInstance: "comfort-breeze", Value: "disabled"},
	)); err != nil {
		t.Fatalf("InitializeElem returned error: %v", err)
	}

	item, ok := c.Get("living")
	if !ok {
		t.Fatalf("fan not tracked after initialize")
	}
	if !item.Available || !item.On {
		t.Fatalf("unexpected fan state %+v", item)
	}
	if item.Speed != "fan-speed-6-050" || item.SpeedPercent != 50 {
		t.Fatalf("unexpected speed %q (%d%%)", item.Speed, item.SpeedPercent)
	}
	if item.Direction != "forward" || item.BreezeOn {
		t.Fatalf("unexpected fan state %+v", item)
	}

	changed, err := c.UpdateElem(fanDevice("living", "ceiling-fan",
		afero.State{FunctionClass: "power", FunctionInstance: "fan-power", Value: "off"},
		afero.State{FunctionClass: "fan-speed", FunctionInstance: "fan-speed", Value: "fan-speed-6-100"},
		afero.State{FunctionClass: "fan-reverse", FunctionInstance: "fan-reverse", Value: "reverse"},
		afero.State{FunctionClass: "toggle", FunctionInstance: "comfort-breeze", Value: "enabled"},
	))
	if err != nil {
		t.Fatalf("UpdateElem returned error: %v", err)
	}
	if len(changed) != 4 {
		t.Fatalf("expected 4 changed fields, got %v", changed)
	}
	item, _ = c.Get("living")
	if item.On || item.SpeedPercent != 100 || item.Direction != "reverse" || !item.BreezeOn {
		t.Fatalf("unexpected fan state %+v", item)
	}

	// A repeated snapshot changes nothing.
	changed, err = c.UpdateElem(fanDevice("living", "ceiling-fan",
		afero.State{FunctionClass: "fan-speed", FunctionInstance: "fan-speed", Value: "fan-speed-6-100"},
	))
	if err != nil {
		t.Fatalf("UpdateElem returned error: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("expected no changes, got %v", changed)
	}
}

func TestFanControllerIgnoresLightPower(t *testing.T) {
	// Fan/light combos carry a second power state for the light kit; only the
	// motor instance drives the fan's on flag.
	c := NewFanController(testLogger())
	if err := c.InitializeElem(fanDevice("combo", "fan",
		afero.State{FunctionClass: "power", FunctionInstance: "fan-power", Value: "off"},
		afero.State{FunctionClass: "power", FunctionInstance: "light-power", Value: "on"},
	)); err != nil {
		t.Fatalf("InitializeElem returned error: %v", err)
	}
	item, _ := c.Get("combo")
	if item.On {
		t.Fatalf("light-power must not switch the fan on")
	}
}

func TestSpeedPercent(t *testing.T) {
	cases := []struct {
		preset string
		want   int
	}{
		{preset: "fan-speed-6-050", want: 50},
		{preset: "fan-speed-6-100", want: 100},
		{preset: "fan-speed-3-033", want: 33},
		{preset: "fan-speed-000", want: 0},
		{preset: "off", want: 0},
		{preset: "", want: 0},
	}
	for _, tc := range cases {
		if got := speedPercent(tc.preset); got != tc.want {
			t.Fatalf("speedPercent(%q) = %d, want %d", tc.preset, got, tc.want)
		}
	}
}
