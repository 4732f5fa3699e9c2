package afero

import (
	"encoding/json"
	"fmt"
)

// State is one reported value of a device function. The wire shape is
// {functionClass, functionInstance, value, lastUpdateTime} and the same
// shape is sent back when pushing updates.
type State struct {
	FunctionClass    string `json:"functionClass"`
	FunctionInstance string `json:"functionInstance,omitempty"`
	Value            any    `json:"value"`
	LastUpdateTime   int64  `json:"lastUpdateTime,omitempty"`
}

// StateKey identifies a state entry within one device. Within a single
// device snapshot the (class, instance) pair is unique.
type StateKey struct {
	Class    string
	Instance string
}

// Key returns the identity of the state within its device.
func (s State) Key() StateKey {
	return StateKey{Class: s.FunctionClass, Instance: s.FunctionInstance}
}

// Function is a capability descriptor advertised by a device.
type Function struct {
	FunctionClass    string           `json:"functionClass"`
	FunctionInstance string           `json:"functionInstance,omitempty"`
	Type             string           `json:"type,omitempty"`
	Values           []map[string]any `json:"values,omitempty"`
}

// Device is one polled snapshot of a metadevice. Instances are built fresh
// on every poll and never mutated; the next poll supersedes them.
type Device struct {
	ID           string
	DeviceID     string
	TypeID       string
	Model        string
	DeviceClass  string
	DefaultName  string
	DefaultImage string
	FriendlyName string
	Manufacturer string
	Functions    []Function
	States       []State
	Children     []string

	// SplitID is set on synthetic resources minted by a controller split
	// callback so they never collide with the physical device id.
	SplitID string
}

// StateMap flattens the state entries into their diffable identity:
// (functionClass, functionInstance) -> value.
func (d *Device) StateMap() map[StateKey]any {
	out := make(map[StateKey]any, len(d.States))
	for _, s := range d.States {
		out[s.Key()] = s.Value
	}
	return out
}

// StatesEqual reports whether two snapshots carry the same state-entry set.
// Values are compared by their JSON rendering since they arrive as any.
func StatesEqual(a, b *Device) bool {
	am, bm := a.StateMap(), b.StateMap()
	if len(am) != len(bm) {
		return false
	}
	for key, av := range am {
		bv, ok := bm[key]
		if !ok {
			return false
		}
		if !valueEqual(av, bv) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if a == b {
		return true
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

// GetFunction finds a capability descriptor by class and instance.
func (d *Device) GetFunction(class, instance string) (Function, bool) {
	for _, fn := range d.Functions {
		if fn.FunctionClass != class || fn.FunctionInstance != instance {
			continue
		}
		return fn, true
	}
	return Function{}, false
}

// GetState finds a state entry by class and instance.
func (d *Device) GetState(class, instance string) (State, bool) {
	for _, s := range d.States {
		if s.FunctionClass == class && s.FunctionInstance == instance {
			return s, true
		}
	}
	return State{}, false
}

// wireDevice mirrors the metadevice JSON returned by the inventory endpoint.
type wireDevice struct {
	ID           string   `json:"id"`
	DeviceID     string   `json:"deviceId"`
	TypeID       string   `json:"typeId"`
	FriendlyName string   `json:"friendlyName"`
	Children     []string `json:"children"`
	Description  struct {
		DefaultImage string     `json:"defaultImage"`
		Functions    []Function `json:"functions"`
		Device       struct {
			Model            string `json:"model"`
			DeviceClass      string `json:"deviceClass"`
			DefaultName      string `json:"defaultName"`
			ManufacturerName string `json:"manufacturerName"`
		} `json:"device"`
	} `json:"description"`
	State struct {
		Values []State `json:"values"`
	} `json:"state"`
}

// ParseDevice maps one raw metadevice payload into a Device. A payload that
// cannot be decoded or lacks an id yields a MalformedDeviceError; callers
// skip the device and keep the batch.
func ParseDevice(raw json.RawMessage) (*Device, error) {
	var wire wireDevice
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &MalformedDeviceError{Err: err}
	}
	if wire.ID == "" {
		return nil, &MalformedDeviceError{Err: fmt.Errorf("missing id")}
	}
	dev := &Device{
		ID:           wire.ID,
		DeviceID:     wire.DeviceID,
		TypeID:       wire.TypeID,
		Model:        wire.Description.Device.Model,
		DeviceClass:  wire.Description.Device.DeviceClass,
		DefaultName:  wire.Description.Device.DefaultName,
		DefaultImage: wire.Description.DefaultImage,
		FriendlyName: wire.FriendlyName,
		Manufacturer: wire.Description.Device.ManufacturerName,
		Functions:    wire.Description.Functions,
		States:       wire.State.Values,
		Children:     wire.Children,
	}
	normalizeQuirks(dev)
	return dev, nil
}

// normalizeQuirks fixes up payloads the vendor ships with wrong or missing
// classification. The table mirrors observed production data.
func normalizeQuirks(d *Device) {
	// A switch that reports brightness is a dimmable light.
	if d.DeviceClass == "switch" {
		if _, ok := d.GetState("brightness", ""); ok {
			d.DeviceClass = "light"
		}
	}
	switch d.DeviceClass {
	case "exhaust-fan":
		if d.DefaultImage == "fan-exhaust-icon" {
			d.Model = "BF1112"
		}
	case "fan", "ceiling-fan":
		switch {
		case d.Model == "" && d.DefaultImage == "ceiling-fan-snyder-park-icon":
			d.Model = "Driskol"
		case d.Model == "" && d.DefaultImage == "ceiling-fan-vinings-icon":
			d.Model = "Vinwood"
		case d.Model == "TBD" && d.DefaultImage == "ceiling-fan-chandra-icon":
			d.Model = "Zandra"
		case d.Model == "TBD" && d.DefaultImage == "ceiling-fan-ac-cct-dardanus-icon":
			d.Model = "Nevali"
		case d.Model == "" && d.DefaultImage == "ceiling-fan-slender-icon":
			d.Model = "Tager"
		}
	case "light":
		switch d.DefaultImage {
		case "a19-e26-color-cct-60w-smd-frosted-icon":
			d.Model = "12A19060WRGBWH2"
		case "slide-dimmer-icon":
			d.Model = "HPDA110NWBP"
		case "bright-edgelit-flushmount-light-icon":
			d.Manufacturer = "Commercial-Electric"
			d.Model = "LCN3002LM-01 WH"
		}
	case "switch":
		if d.DefaultImage == "smart-switch-icon" && d.Model == "TBD" {
			d.Model = "HPSA11CWB"
		}
	case "glass-door":
		// Controllable glass doors behave like a switch.
		d.DeviceClass = "switch"
		d.Manufacturer = "Feather River Doors"
	}
	if d.Model == "TBD" && d.DefaultName != "" {
		d.Model = d.DefaultName
	}
}
