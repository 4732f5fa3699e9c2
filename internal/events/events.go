// Package events implements the state-synchronization engine: it polls the
// Afero inventory endpoint, diffs raw device snapshots against the
// last-known state and fans the resulting event stream out to subscribers.
package events

import (
	"encoding/json"
	"time"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
)

// EventType tags an Event.
type EventType string

const (
	ResourceAdded   EventType = "add"
	ResourceUpdated EventType = "update"
	ResourceDeleted EventType = "delete"
	// ResourceVersion fires when a device's metadata (model, class,
	// manufacturer) changed while its state entries did not.
	ResourceVersion EventType = "version"
	// UpdateResponse carries the changed-field set a controller reported
	// after consuming an update.
	UpdateResponse EventType = "update_response"
	Connected      EventType = "connected"
	Disconnected   EventType = "disconnected"
	Reconnected    EventType = "reconnected"
	InvalidAuth    EventType = "invalid_auth"
	// PolledData carries the raw inventory payload of one poll.
	PolledData EventType = "polled_data"
	// PolledDevices carries the parsed, post-split device list of one poll.
	PolledDevices EventType = "polled_devices"
)

// Event is one occurrence on the stream. Events are transient and never
// stored beyond delivery.
type Event struct {
	Type       EventType
	DeviceID   string
	Device     *afero.Device     // add / update / version
	Changed    []string          // update_response
	Devices    []*afero.Device   // polled_devices
	Raw        []json.RawMessage // polled_data
	ReceivedAt time.Time
}

// Callback consumes events. Callbacks must not assume any particular
// goroutine; delivery order is preserved per subscription.
type Callback func(Event)
