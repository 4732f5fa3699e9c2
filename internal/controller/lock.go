package controller

import (
	"log/slog"
	"sort"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

// LockController owns door-lock resources.
type LockController struct {
	base
	items map[string]*model.Lock
}

// NewLockController builds an empty lock controller.
func NewLockController(logger *slog.Logger) *LockController {
	return &LockController{
		base:  newBase(logger, "locks"),
		items: map[string]*model.Lock{},
	}
}

func (c *LockController) Kind() string { return "lock" }

func (c *LockController) Matches(dev *afero.Device) bool {
	return claimable(dev) && dev.DeviceClass == "door-lock"
}

func (c *LockController) InitializeElem(dev *afero.Device) error {
	item := &model.Lock{DeviceInformation: deviceInformation(dev)}
	c.apply(item, dev)
	c.mu.Lock()
	c.items[dev.ID] = item
	c.mu.Unlock()
	c.logger.Debug("initialized lock", "device", dev.ID)
	return nil
}

func (c *LockController) UpdateElem(dev *afero.Device) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[dev.ID]
	if !ok {
		return nil, errUnclaimed(c.Kind(), dev.ID)
	}
	return c.apply(item, dev), nil
}

func (c *LockController) apply(item *model.Lock, dev *afero.Device) []string {
	var changed []string
	for _, s := range dev.States {
		switch s.Key() {
		case afero.StateKey{Class: "available"}:
			if b, ok := s.Value.(bool); ok && item.Available != b {
				item.Available = b
				changed = append(changed, "available")
			}
		case afero.StateKey{Class: "lock-control"}:
			if v, ok := asString(s.Value); ok && item.Position != model.LockPosition(v) {
				item.Position = model.LockPosition(v)
				changed = append(changed, "position")
			}
		}
	}
	return changed
}

func (c *LockController) RemoveElem(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Get returns a copy of the tracked lock.
func (c *LockController) Get(id string) (model.Lock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return model.Lock{}, false
	}
	return *item, true
}

func (c *LockController) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
