package controller

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

// sensorSplitPrefix marks remote sensor banks some thermostats expose as
// temperature function instances; those are split into their own resources.
const sensorSplitPrefix = "sensor-"

// ThermostatController owns HVAC resources.
type ThermostatController struct {
	base
	displayUnit model.TemperatureUnit
	items       map[string]*model.Thermostat
}

// NewThermostatController builds an empty thermostat controller presenting
// temperatures in the given unit.
func NewThermostatController(logger *slog.Logger, unit model.TemperatureUnit) *ThermostatController {
	if unit == "" {
		unit = model.Celsius
	}
	return &ThermostatController{
		base:        newBase(logger, "thermostats"),
		displayUnit: unit,
		items:       map[string]*model.Thermostat{},
	}
}

func (c *ThermostatController) Kind() string { return "thermostat" }

func (c *ThermostatController) Matches(dev *afero.Device) bool {
	return claimable(dev) && dev.DeviceClass == "thermostat" && dev.SplitID == ""
}

// SplitDevice moves remote temperature sensor entries into synthetic
// resources of class thermostat-sensor, one per sensor instance. The
// thermostat itself stays in the batch.
func (c *ThermostatController) SplitDevice(dev *afero.Device) ([]*afero.Device, bool) {
	if dev.DeviceClass != "thermostat" || dev.SplitID != "" {
		return nil, false
	}
	instances := map[string][]afero.State{}
	for _, s := range dev.States {
		if s.FunctionClass == "temperature" && strings.HasPrefix(s.FunctionInstance, sensorSplitPrefix) {
			instances[s.FunctionInstance] = append(instances[s.FunctionInstance], s)
		}
	}
	if len(instances) == 0 {
		return nil, false
	}

	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	sort.Strings(names)

	synthetic := make([]*afero.Device, 0, len(names))
	for _, name := range names {
		states := instances[name]
		if avail, ok := dev.GetState("available", ""); ok {
			states = append(states, avail)
		}
		synthetic = append(synthetic, &afero.Device{
			ID:           dev.ID + "-" + name,
			DeviceID:     dev.DeviceID,
			Model:        dev.Model,
			DeviceClass:  "thermostat-sensor",
			DefaultName:  dev.DefaultName,
			DefaultImage: dev.DefaultImage,
			FriendlyName: dev.FriendlyName + " " + name,
			Manufacturer: dev.Manufacturer,
			States:       states,
			SplitID:      name,
		})
	}
	return synthetic, false
}

func (c *ThermostatController) InitializeElem(dev *afero.Device) error {
	item := &model.Thermostat{
		DeviceInformation: deviceInformation(dev),
		Converter:         model.TemperatureConverter{DisplayUnit: c.displayUnit},
	}
	c.apply(item, dev)
	c.mu.Lock()
	c.items[dev.ID] = item
	c.mu.Unlock()
	c.logger.Debug("initialized thermostat", "device", dev.ID)
	return nil
}

func (c *ThermostatController) UpdateElem(dev *afero.Device) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[dev.ID]
	if !ok {
		return nil, errUnclaimed(c.Kind(), dev.ID)
	}
	return c.apply(item, dev), nil
}

func (c *ThermostatController) apply(item *model.Thermostat, dev *afero.Device) []string {
	var changed []string
	setTemp := func(target *float64, field string, v any) {
		f, ok := asFloat(v)
		if ok && *target != f {
			*target = f
			changed = append(changed, field)
		}
	}
	for _, s := range dev.States {
		switch s.FunctionClass {
		case "available":
			if b, ok := s.Value.(bool); ok && item.Available != b {
				item.Available = b
				changed = append(changed, "available")
			}
		case "temperature":
			switch s.FunctionInstance {
			case "current-temp":
				setTemp(&item.CurrentTemperature, "current_temperature", s.Value)
			case "heating-target":
				setTemp(&item.TargetHeating, "target_heating", s.Value)
			case "cooling-target":
				setTemp(&item.TargetCooling, "target_cooling", s.Value)
			case "auto-heating-target":
				setTemp(&item.AutoHeating, "auto_heating", s.Value)
			case "auto-cooling-target":
				setTemp(&item.AutoCooling, "auto_cooling", s.Value)
			case "safety-mode-min-temp":
				setTemp(&item.SafetyMinTemp, "safety_min_temp", s.Value)
			case "safety-mode-max-temp":
				setTemp(&item.SafetyMaxTemp, "safety_max_temp", s.Value)
			}
		case "mode":
			if v, ok := asString(s.Value); ok && item.Mode != model.HVACMode(v) {
				item.PreviousMode = item.Mode
				item.Mode = model.HVACMode(v)
				changed = append(changed, "mode")
			}
		case "fan-mode":
			if v, ok := asString(s.Value); ok && item.FanMode != v {
				item.FanMode = v
				changed = append(changed, "fan_mode")
			}
		case "current-fan-speed":
			if v, ok := asString(s.Value); ok {
				running := v != "" && v != "fan-speed-0-off"
				if item.FanRunning != running {
					item.FanRunning = running
					changed = append(changed, "fan_running")
				}
			}
		case "hvac-action":
			if v, ok := asString(s.Value); ok && item.HVACAction != v {
				item.HVACAction = v
				changed = append(changed, "hvac_action")
			}
		}
	}
	return changed
}

func (c *ThermostatController) RemoveElem(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Get returns a copy of the tracked thermostat.
func (c *ThermostatController) Get(id string) (model.Thermostat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return model.Thermostat{}, false
	}
	return *item, true
}

func (c *ThermostatController) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
