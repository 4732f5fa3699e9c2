package controller

import (
	"log/slog"
	"sort"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

// lightApplier mutates one typed field from a state entry and reports the
// changed-field identifier. Unknown function classes fall through unhandled.
type lightApplier func(item *model.Light, value any) (string, bool)

// lightAppliers is the fixed (functionClass, functionInstance) mapping for
// lights.
var lightAppliers = map[afero.StateKey]lightApplier{
	{Class: "available"}: func(item *model.Light, v any) (string, bool) {
		b, ok := v.(bool)
		if !ok || item.Available == b {
			return "", false
		}
		item.Available = b
		return "available", true
	},
	{Class: "power", Instance: "light-power"}: applyLightPower,
	{Class: "power"}:                          applyLightPower,
	{Class: "brightness"}: func(item *model.Light, v any) (string, bool) {
		f, ok := asFloat(v)
		if !ok || item.Brightness == int(f) {
			return "", false
		}
		item.Brightness = int(f)
		return "brightness", true
	},
	{Class: "color-temperature"}: func(item *model.Light, v any) (string, bool) {
		f, ok := asFloat(v)
		if !ok || item.ColorTempK == int(f) {
			return "", false
		}
		item.ColorTempK = int(f)
		return "color_temp_k", true
	},
	{Class: "color-rgb"}: func(item *model.Light, v any) (string, bool) {
		rgb, ok := parseRGB(v)
		if !ok {
			return "", false
		}
		if item.Color != nil && *item.Color == rgb {
			return "", false
		}
		item.Color = &rgb
		return "color", true
	},
}

func applyLightPower(item *model.Light, v any) (string, bool) {
	s, ok := asString(v)
	if !ok {
		return "", false
	}
	on := s == "on"
	if item.On == on {
		return "", false
	}
	item.On = on
	return "on", true
}

func parseRGB(v any) (model.RGB, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return model.RGB{}, false
	}
	inner, ok := m["color-rgb"].(map[string]any)
	if ok {
		m = inner
	}
	r, rok := asFloat(m["r"])
	g, gok := asFloat(m["g"])
	b, bok := asFloat(m["b"])
	if !rok || !gok || !bok {
		return model.RGB{}, false
	}
	return model.RGB{R: int(r), G: int(g), B: int(b)}, true
}

// LightController owns light resources.
type LightController struct {
	base
	items map[string]*model.Light
}

// NewLightController builds an empty light controller.
func NewLightController(logger *slog.Logger) *LightController {
	return &LightController{
		base:  newBase(logger, "lights"),
		items: map[string]*model.Light{},
	}
}

func (c *LightController) Kind() string { return "light" }

func (c *LightController) Matches(dev *afero.Device) bool {
	return claimable(dev) && dev.DeviceClass == "light"
}

func (c *LightController) InitializeElem(dev *afero.Device) error {
	item := &model.Light{DeviceInformation: deviceInformation(dev)}
	for _, s := range dev.States {
		if apply, ok := lightAppliers[s.Key()]; ok {
			apply(item, s.Value)
		}
	}
	c.mu.Lock()
	c.items[dev.ID] = item
	c.mu.Unlock()
	c.logger.Debug("initialized light", "device", dev.ID)
	return nil
}

func (c *LightController) UpdateElem(dev *afero.Device) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[dev.ID]
	if !ok {
		return nil, errUnclaimed(c.Kind(), dev.ID)
	}
	var changed []string
	for _, s := range dev.States {
		apply, ok := lightAppliers[s.Key()]
		if !ok {
			continue // unknown function classes are ignored
		}
		if field, did := apply(item, s.Value); did {
			changed = append(changed, field)
		}
	}
	return changed, nil
}

func (c *LightController) RemoveElem(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Get returns a copy of the tracked light.
func (c *LightController) Get(id string) (model.Light, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return model.Light{}, false
	}
	return *item, true
}

func (c *LightController) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func deviceInformation(dev *afero.Device) model.DeviceInformation {
	return model.DeviceInformation{
		ID:           dev.ID,
		ParentID:     dev.DeviceID,
		Name:         dev.FriendlyName,
		Model:        dev.Model,
		DeviceClass:  dev.DeviceClass,
		Manufacturer: dev.Manufacturer,
		DefaultName:  dev.DefaultName,
		DefaultImage: dev.DefaultImage,
		Children:     dev.Children,
	}
}
