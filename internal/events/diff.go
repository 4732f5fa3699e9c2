package events

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
)

// GenerateEvents diffs one poll batch against the cached raw state and
// returns the ordered event list plus the post-split device list. Events are
// ordered adds, then updates, then deletes; adds and updates follow input
// order, deletes are sorted by device id. Re-running the same batch yields
// no events.
//
// A malformed payload only skips its own device, never the batch. Metadata
// changes without a state-entry change surface as ResourceVersion, not
// ResourceUpdated; consumers that derive typed fields from metadata listen
// for both.
func (s *Stream) GenerateEvents(raw []json.RawMessage) ([]Event, []*afero.Device) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	now := time.Now().UTC()
	devices := make([]*afero.Device, 0, len(raw))
	for _, payload := range raw {
		dev, err := afero.ParseDevice(payload)
		if err != nil {
			s.logger.Warn("skipping malformed device", "err", err)
			continue
		}
		devices = append(devices, dev)
	}
	devices = s.applySplits(devices)

	var adds, updates, deletes []Event
	seen := make(map[string]struct{}, len(devices))
	for _, dev := range devices {
		if _, dup := seen[dev.ID]; dup {
			s.logger.Warn("duplicate device id in poll batch", "device", dev.ID)
			continue
		}
		seen[dev.ID] = struct{}{}

		cached, known := s.cache[dev.ID]
		switch {
		case !known:
			adds = append(adds, Event{Type: ResourceAdded, DeviceID: dev.ID, Device: dev, ReceivedAt: now})
		case !afero.StatesEqual(cached, dev):
			updates = append(updates, Event{Type: ResourceUpdated, DeviceID: dev.ID, Device: dev, ReceivedAt: now})
		case metadataChanged(cached, dev):
			updates = append(updates, Event{Type: ResourceVersion, DeviceID: dev.ID, Device: dev, ReceivedAt: now})
		default:
			// Unchanged snapshot, no event.
		}
		s.cache[dev.ID] = dev
	}

	removed := make([]string, 0)
	for id := range s.cache {
		if _, ok := seen[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		delete(s.cache, id)
		deletes = append(deletes, Event{Type: ResourceDeleted, DeviceID: id, ReceivedAt: now})
	}

	batch := make([]Event, 0, len(adds)+len(updates)+len(deletes))
	batch = append(batch, adds...)
	batch = append(batch, updates...)
	batch = append(batch, deletes...)
	return batch, devices
}

// CachedDevice returns the last snapshot seen for a device id.
func (s *Stream) CachedDevice(id string) (*afero.Device, bool) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	dev, ok := s.cache[id]
	return dev, ok
}

// CachedDevices returns the last snapshot of every known device, sorted by
// id.
func (s *Stream) CachedDevices() []*afero.Device {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	out := make([]*afero.Device, 0, len(s.cache))
	for _, dev := range s.cache {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Stream) applySplits(devices []*afero.Device) []*afero.Device {
	s.splitMu.RLock()
	splits := make([]SplitFunc, len(s.splits))
	copy(splits, s.splits)
	s.splitMu.RUnlock()
	if len(splits) == 0 {
		return devices
	}

	out := make([]*afero.Device, 0, len(devices))
	for _, dev := range devices {
		removeOriginal := false
		for _, split := range splits {
			synthetic, remove := split(dev)
			out = append(out, synthetic...)
			if remove {
				removeOriginal = true
			}
		}
		if !removeOriginal {
			out = append(out, dev)
		}
	}
	return out
}

func metadataChanged(prev, next *afero.Device) bool {
	return prev.Model != next.Model ||
		prev.DeviceClass != next.DeviceClass ||
		prev.Manufacturer != next.Manufacturer ||
		prev.FriendlyName != next.FriendlyName
}
