package afero

import (
	"encoding/json"
	"errors"
	"testing"
)

const samplePayload = `{
	"id": "light-1",
	"deviceId": "phys-1",
	"typeId": "metadevice.device",
	"friendlyName": "Porch Light",
	"children": [],
	"description": {
		"defaultImage": "slide-dimmer-icon",
		"functions": [
			{"functionClass": "power", "functionInstance": "light-power", "type": "category"}
		],
		"device": {
			"model": "TBD",
			"deviceClass": "light",
			"defaultName": "Smart Dimmer",
			"manufacturerName": "Hampton Bay"
		}
	},
	"state": {
		"values": [
			{"functionClass": "power", "functionInstance": "light-power", "value": "on", "lastUpdateTime": 1700000000000},
			{"functionClass": "brightness", "value": 75}
		]
	}
}`

func TestParseDevice(t *testing.T) {
	dev, err := ParseDevice(json.RawMessage(samplePayload))
	if err != nil {
		t.Fatalf("ParseDevice returned error: %v", err)
	}
	if dev.ID != "light-1" || dev.DeviceID != "phys-1" {
		t.Fatalf("unexpected ids %q / %q", dev.ID, dev.DeviceID)
	}
	if dev.TypeID != TypeMetadevice {
		t.Fatalf("unexpected typeId %q", dev.TypeID)
	}
	if dev.DeviceClass != "light" || dev.FriendlyName != "Porch Light" {
		t.Fatalf("unexpected classification %q / %q", dev.DeviceClass, dev.FriendlyName)
	}
	// slide-dimmer-icon carries the HPDA110NWBP model quirk.
	if dev.Model != "HPDA110NWBP" {
		t.Fatalf("expected quirk model, got %q", dev.Model)
	}
	if len(dev.States) != 2 || len(dev.Functions) != 1 {
		t.Fatalf("unexpected state/function counts %d/%d", len(dev.States), len(dev.Functions))
	}
	state, ok := dev.GetState("power", "light-power")
	if !ok || state.Value != "on" {
		t.Fatalf("expected power state on, got %+v", state)
	}
}

func TestParseDeviceMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "invalid json", payload: `{"id": `},
		{name: "missing id", payload: `{"friendlyName": "ghost"}`},
		{name: "wrong shape", payload: `[1, 2, 3]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDevice(json.RawMessage(tc.payload))
			var malformed *MalformedDeviceError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedDeviceError, got %v", err)
			}
		})
	}
}

func TestNormalizeQuirks(t *testing.T) {
	cases := []struct {
		name       string
		in         Device
		wantClass  string
		wantModel  string
		wantVendor string
	}{
		{
			name: "dimming switch becomes light",
			in: Device{
				DeviceClass: "switch",
				States:      []State{{FunctionClass: "brightness", Value: 50}},
			},
			wantClass: "light",
		},
		{
			name:       "glass door becomes switch",
			in:         Device{DeviceClass: "glass-door"},
			wantClass:  "switch",
			wantVendor: "Feather River Doors",
		},
		{
			name:      "fan model from image",
			in:        Device{DeviceClass: "fan", DefaultImage: "ceiling-fan-vinings-icon"},
			wantClass: "fan",
			wantModel: "Vinwood",
		},
		{
			name:      "placeholder model falls back to default name",
			in:        Device{DeviceClass: "door-lock", Model: "TBD", DefaultName: "Keypad Deadbolt"},
			wantClass: "door-lock",
			wantModel: "Keypad Deadbolt",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dev := tc.in
			normalizeQuirks(&dev)
			if dev.DeviceClass != tc.wantClass {
				t.Fatalf("expected class %q, got %q", tc.wantClass, dev.DeviceClass)
			}
			if tc.wantModel != "" && dev.Model != tc.wantModel {
				t.Fatalf("expected model %q, got %q", tc.wantModel, dev.Model)
			}
			if tc.wantVendor != "" && dev.Manufacturer != tc.wantVendor {
				t.Fatalf("expected manufacturer %q, got %q", tc.wantVendor, dev.Manufacturer)
			}
		})
	}
}

func TestStatesEqual(t *testing.T) {
	base := &Device{States: []State{
		{FunctionClass: "power", FunctionInstance: "light-power", Value: "on"},
		{FunctionClass: "brightness", Value: 75},
	}}

	reordered := &Device{States: []State{
		{FunctionClass: "brightness", Value: 75, LastUpdateTime: 99},
		{FunctionClass: "power", FunctionInstance: "light-power", Value: "on"},
	}}
	if !StatesEqual(base, reordered) {
		t.Fatalf("expected order and timestamps to be ignored")
	}

	changed := &Device{States: []State{
		{FunctionClass: "power", FunctionInstance: "light-power", Value: "off"},
		{FunctionClass: "brightness", Value: 75},
	}}
	if StatesEqual(base, changed) {
		t.Fatalf("expected value change to be detected")
	}

	missing := &Device{States: []State{
		{FunctionClass: "power", FunctionInstance: "light-power", Value: "on"},
	}}
	if StatesEqual(base, missing) {
		t.Fatalf("expected missing entry to be detected")
	}
}
