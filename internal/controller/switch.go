package controller

import (
	"log/slog"
	"sort"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

// switchClasses are the device classes that behave as plain relays.
var switchClasses = map[string]struct{}{
	"switch":                {},
	"power-outlet":          {},
	"landscape-transformer": {},
}

// SwitchController owns relay and outlet resources, including multi-gang
// devices that report one power state per function instance.
type SwitchController struct {
	base
	items map[string]*model.Switch
}

// NewSwitchController builds an empty switch controller.
func NewSwitchController(logger *slog.Logger) *SwitchController {
	return &SwitchController{
		base:  newBase(logger, "switches"),
		items: map[string]*model.Switch{},
	}
}

func (c *SwitchController) Kind() string { return "switch" }

func (c *SwitchController) Matches(dev *afero.Device) bool {
	if !claimable(dev) {
		return false
	}
	_, ok := switchClasses[dev.DeviceClass]
	return ok
}

func (c *SwitchController) InitializeElem(dev *afero.Device) error {
	item := &model.Switch{
		DeviceInformation: deviceInformation(dev),
		On:                map[string]bool{},
	}
	c.apply(item, dev)
	c.mu.Lock()
	c.items[dev.ID] = item
	c.mu.Unlock()
	c.logger.Debug("initialized switch", "device", dev.ID)
	return nil
}

func (c *SwitchController) UpdateElem(dev *afero.Device) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[dev.ID]
	if !ok {
		return nil, errUnclaimed(c.Kind(), dev.ID)
	}
	return c.apply(item, dev), nil
}

func (c *SwitchController) apply(item *model.Switch, dev *afero.Device) []string {
	var changed []string
	for _, s := range dev.States {
		switch s.FunctionClass {
		case "available":
			if b, ok := s.Value.(bool); ok && item.Available != b {
				item.Available = b
				changed = append(changed, "available")
			}
		case "power", "toggle":
			v, ok := asString(s.Value)
			if !ok {
				continue
			}
			on := v == "on"
			if current, seen := item.On[s.FunctionInstance]; !seen || current != on {
				item.On[s.FunctionInstance] = on
				field := "on"
				if s.FunctionInstance != "" {
					field = "on." + s.FunctionInstance
				}
				changed = append(changed, field)
			}
		}
	}
	return changed
}

func (c *SwitchController) RemoveElem(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Get returns a copy of the tracked switch.
func (c *SwitchController) Get(id string) (model.Switch, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return model.Switch{}, false
	}
	cpy := *item
	cpy.On = make(map[string]bool, len(item.On))
	for k, v := range item.On {
		cpy.On[k] = v
	}
	return cpy, true
}

func (c *SwitchController) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
