package controller

import (
	"log/slog"
	"sort"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

// sensorClasses maps sensor-style state entries onto the generic sensor
// banks of a top-level device.
var sensorClasses = map[string]struct{}{
	"battery-level":   {},
	"output-voltage":  {},
	"watts":           {},
	"power-loss":      {},
	"error-flag":      {},
	"filter-replace":  {},
	"tamper-detected": {},
}

// DeviceController tracks top-level physical devices and the sensor banks
// attached to them, including synthetic sensors split out of composite
// devices (class thermostat-sensor).
type DeviceController struct {
	base
	items map[string]*model.Device
}

// NewDeviceController builds an empty device controller.
func NewDeviceController(logger *slog.Logger) *DeviceController {
	return &DeviceController{
		base:  newBase(logger, "devices"),
		items: map[string]*model.Device{},
	}
}

func (c *DeviceController) Kind() string { return "device" }

// Matches claims parents (entries with children or that are their own
// physical device) and synthetic sensor resources.
func (c *DeviceController) Matches(dev *afero.Device) bool {
	if !claimable(dev) {
		return false
	}
	if dev.DeviceClass == "thermostat-sensor" {
		return true
	}
	return len(dev.Children) > 0
}

func (c *DeviceController) InitializeElem(dev *afero.Device) error {
	item := &model.Device{
		DeviceInformation: deviceInformation(dev),
		Sensors:           map[string]any{},
		BinarySensors:     map[string]bool{},
		Temperatures:      map[string]float64{},
	}
	c.apply(item, dev)
	c.mu.Lock()
	c.items[dev.ID] = item
	c.mu.Unlock()
	c.logger.Debug("initialized device", "device", dev.ID)
	return nil
}

func (c *DeviceController) UpdateElem(dev *afero.Device) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[dev.ID]
	if !ok {
		return nil, errUnclaimed(c.Kind(), dev.ID)
	}
	return c.apply(item, dev), nil
}

func (c *DeviceController) apply(item *model.Device, dev *afero.Device) []string {
	var changed []string
	for _, s := range dev.States {
		switch {
		case s.FunctionClass == "available":
			if b, ok := s.Value.(bool); ok && item.Available != b {
				item.Available = b
				changed = append(changed, "available")
			}
		case s.FunctionClass == "wifi-rssi":
			if f, ok := asFloat(s.Value); ok {
				v := int(f)
				if item.WifiRSSI == nil || *item.WifiRSSI != v {
					item.WifiRSSI = &v
					changed = append(changed, "wifi_rssi")
				}
			}
		case s.FunctionClass == "temperature":
			if f, ok := asFloat(s.Value); ok {
				if prev, seen := item.Temperatures[s.FunctionInstance]; !seen || prev != f {
					item.Temperatures[s.FunctionInstance] = f
					changed = append(changed, "temperature."+s.FunctionInstance)
				}
			}
		default:
			if _, sensor := sensorClasses[s.FunctionClass]; !sensor {
				continue
			}
			if b, ok := s.Value.(bool); ok {
				if prev, seen := item.BinarySensors[s.FunctionClass]; !seen || prev != b {
					item.BinarySensors[s.FunctionClass] = b
					changed = append(changed, s.FunctionClass)
				}
				continue
			}
			if prev, seen := item.Sensors[s.FunctionClass]; !seen || !sensorEqual(prev, s.Value) {
				item.Sensors[s.FunctionClass] = s.Value
				changed = append(changed, s.FunctionClass)
			}
		}
	}
	return changed
}

func sensorEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func (c *DeviceController) RemoveElem(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Get returns a copy of the tracked device.
func (c *DeviceController) Get(id string) (model.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return model.Device{}, false
	}
	cpy := *item
	cpy.Sensors = make(map[string]any, len(item.Sensors))
	for k, v := range item.Sensors {
		cpy.Sensors[k] = v
	}
	cpy.BinarySensors = make(map[string]bool, len(item.BinarySensors))
	for k, v := range item.BinarySensors {
		cpy.BinarySensors[k] = v
	}
	cpy.Temperatures = make(map[string]float64, len(item.Temperatures))
	for k, v := range item.Temperatures {
		cpy.Temperatures[k] = v
	}
	return cpy, true
}

func (c *DeviceController) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
