// Package model holds the typed resource representations built from raw
// device snapshots. Instances are owned by their controller; everything here
// is plain data.
package model

// DeviceInformation is the stateless metadata shared by every resource.
type DeviceInformation struct {
	ID           string   `json:"id"`
	ParentID     string   `json:"parent_id,omitempty"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	DeviceClass  string   `json:"device_class"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	DefaultName  string   `json:"default_name,omitempty"`
	DefaultImage string   `json:"default_image,omitempty"`
	Children     []string `json:"children,omitempty"`
}

// Device is a top-level physical device. It aggregates the sensor bank the
// platform attaches to parents, including sensors split out of composite
// devices.
type Device struct {
	DeviceInformation
	Available     bool               `json:"available"`
	Sensors       map[string]any     `json:"sensors,omitempty"`
	BinarySensors map[string]bool    `json:"binary_sensors,omitempty"`
	WifiRSSI      *int               `json:"wifi_rssi,omitempty"`
	Temperatures  map[string]float64 `json:"temperatures,omitempty"`
}

// RGB is a color triple as reported by the API.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Light is a dimmable and optionally color-capable light.
type Light struct {
	DeviceInformation
	Available  bool `json:"available"`
	On         bool `json:"on"`
	Brightness int  `json:"brightness"` // percent
	ColorTempK int  `json:"color_temp_k,omitempty"`
	Color      *RGB `json:"color,omitempty"`
}

// Fan is a ceiling or exhaust fan. Speed holds the raw preset name the API
// reports ("fan-speed-6-050"); SpeedPercent is the percentage parsed from it.
type Fan struct {
	DeviceInformation
	Available    bool   `json:"available"`
	On           bool   `json:"on"`
	Speed        string `json:"speed,omitempty"`
	SpeedPercent int    `json:"speed_percent"`
	Direction    string `json:"direction,omitempty"`
	BreezeOn     bool   `json:"breeze_on"`
}

// LockPosition is the reported position of a lock actuator.
type LockPosition string

const (
	LockPositionLocked    LockPosition = "locked"
	LockPositionUnlocked  LockPosition = "unlocked"
	LockPositionLocking   LockPosition = "locking"
	LockPositionUnlocking LockPosition = "unlocking"
	LockPositionJammed    LockPosition = "jammed"
)

// Lock is a door lock.
type Lock struct {
	DeviceInformation
	Available bool         `json:"available"`
	Position  LockPosition `json:"position"`
}

// Switch is a relay or outlet. Multi-gang devices report one power state per
// function instance; single-gang devices use the empty instance.
type Switch struct {
	DeviceInformation
	Available bool            `json:"available"`
	On        map[string]bool `json:"on"`
}

// HVACMode is the operating mode of a thermostat.
type HVACMode string

const (
	HVACModeOff      HVACMode = "off"
	HVACModeHeat     HVACMode = "heat"
	HVACModeCool     HVACMode = "cool"
	HVACModeAuto     HVACMode = "auto"
	HVACModeFan      HVACMode = "fan"
	HVACModeAutoCool HVACMode = "auto-cool"
)

// Thermostat is an HVAC controller. Temperatures are stored in Celsius, the
// unit the API speaks; the converter is consulted at presentation time.
type Thermostat struct {
	DeviceInformation
	Converter TemperatureConverter `json:"-"`

	Available          bool     `json:"available"`
	CurrentTemperature float64  `json:"current_temperature"`
	TargetHeating      float64  `json:"target_heating"`
	TargetCooling      float64  `json:"target_cooling"`
	AutoHeating        float64  `json:"auto_heating"`
	AutoCooling        float64  `json:"auto_cooling"`
	SafetyMinTemp      float64  `json:"safety_min_temp"`
	SafetyMaxTemp      float64  `json:"safety_max_temp"`
	Mode               HVACMode `json:"mode"`
	PreviousMode       HVACMode `json:"previous_mode,omitempty"`
	FanMode            string   `json:"fan_mode,omitempty"`
	FanRunning         bool     `json:"fan_running"`
	HVACAction         string   `json:"hvac_action,omitempty"`
}

// TargetTemperature returns the setpoint the unit is currently driving
// toward, in the display unit. The second result is false when no single
// setpoint applies (auto and unknown modes).
func (t *Thermostat) TargetTemperature() (float64, bool) {
	mode := t.modeToCheck()
	switch mode {
	case HVACModeCool, HVACModeAutoCool:
		return t.Converter.Display(t.TargetCooling), true
	case HVACModeHeat:
		return t.Converter.Display(t.TargetHeating), true
	default:
		return 0, false
	}
}

// TargetTemperatureRange returns the supported setpoint range in the display
// unit.
func (t *Thermostat) TargetTemperatureRange() (float64, float64) {
	return t.Converter.Display(t.AutoHeating), t.Converter.Display(t.AutoCooling)
}

// DisplayCurrentTemperature returns the measured temperature in the display
// unit.
func (t *Thermostat) DisplayCurrentTemperature() float64 {
	return t.Converter.Display(t.CurrentTemperature)
}

func (t *Thermostat) modeToCheck() HVACMode {
	switch t.Mode {
	case HVACModeCool, HVACModeAutoCool, HVACModeHeat:
		return t.Mode
	}
	switch t.PreviousMode {
	case HVACModeCool, HVACModeAutoCool, HVACModeHeat:
		return t.PreviousMode
	}
	return ""
}
