package controller

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

// fanClasses are the device classes served by the fan controller.
var fanClasses = map[string]struct{}{
	"fan":         {},
	"ceiling-fan": {},
	"exhaust-fan": {},
}

// FanController owns ceiling and exhaust fans. Speed presets arrive as
// strings like "fan-speed-6-050"; the trailing segment is the percentage.
type FanController struct {
	base
	items map[string]*model.Fan
}

// NewFanController builds an empty fan controller.
func NewFanController(logger *slog.Logger) *FanController {
	return &FanController{
		base:  newBase(logger, "fans"),
		items: map[string]*model.Fan{},
	}
}

func (c *FanController) Kind() string { return "fan" }

func (c *FanController) Matches(dev *afero.Device) bool {
	if !claimable(dev) {
		return false
	}
	_, ok := fanClasses[dev.DeviceClass]
	return ok
}

func (c *FanController) InitializeElem(dev *afero.Device) error {
	item := &model.Fan{DeviceInformation: deviceInformation(dev)}
	c.apply(item, dev)
	c.mu.Lock()
	c.items[dev.ID] = item
	c.mu.Unlock()
	c.logger.Debug("initialized fan", "device", dev.ID)
	return nil
}

func (c *FanController) UpdateElem(dev *afero.Device) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[dev.ID]
	if !ok {
		return nil, errUnclaimed(c.Kind(), dev.ID)
	}
	return c.apply(item, dev), nil
}

func (c *FanController) apply(item *model.Fan, dev *afero.Device) []string {
	var changed []string
	for _, s := range dev.States {
		switch s.FunctionClass {
		case "available":
			if b, ok := s.Value.(bool); ok && item.Available != b {
				item.Available = b
				changed = append(changed, "available")
			}
		case "power":
			// Single-relay fans use the empty instance; combo fixtures
			// address the motor as "fan-power".
			if s.FunctionInstance != "" && s.FunctionInstance != "fan-power" {
				continue
			}
			v, ok := asString(s.Value)
			if !ok {
				continue
			}
			if on := v == "on"; item.On != on {
				item.On = on
				changed = append(changed, "on")
			}
		case "fan-speed":
			v, ok := asString(s.Value)
			if !ok || v == item.Speed {
				continue
			}
			item.Speed = v
			item.SpeedPercent = speedPercent(v)
			changed = append(changed, "speed")
		case "fan-reverse":
			v, ok := asString(s.Value)
			if ok && v != item.Direction {
				item.Direction = v
				changed = append(changed, "direction")
			}
		case "toggle":
			if s.FunctionInstance != "comfort-breeze" {
				continue
			}
			v, ok := asString(s.Value)
			if !ok {
				continue
			}
			if on := v == "enabled"; item.BreezeOn != on {
				item.BreezeOn = on
				changed = append(changed, "breeze")
			}
		}
	}
	return changed
}

// speedPercent extracts the percentage from a speed preset name. Unknown
// shapes report zero.
func speedPercent(preset string) int {
	idx := strings.LastIndex(preset, "-")
	if idx < 0 || idx == len(preset)-1 {
		return 0
	}
	pct, err := strconv.Atoi(preset[idx+1:])
	if err != nil || pct < 0 || pct > 100 {
		return 0
	}
	return pct
}

func (c *FanController) RemoveElem(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Get returns a copy of the tracked fan.
func (c *FanController) Get(id string) (model.Fan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return model.Fan{}, false
	}
	return *item, true
}

func (c *FanController) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
