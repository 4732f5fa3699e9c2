// Package controller holds the per-resource-type owners of typed state.
// Each controller decides via its acceptance predicate whether it claims a
// polled device; claimed devices are initialized once and then fed updates.
package controller

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
)

// Controller owns the typed models for one resource kind.
type Controller interface {
	// Kind names the resource type for logs and the API surface.
	Kind() string
	// Matches is the acceptance predicate consulted on the add path.
	Matches(dev *afero.Device) bool
	// InitializeElem builds the typed model for a newly claimed device.
	InitializeElem(dev *afero.Device) error
	// UpdateElem applies a new snapshot and returns the identifiers of the
	// fields that changed.
	UpdateElem(dev *afero.Device) ([]string, error)
	// RemoveElem drops the typed model for a deleted device.
	RemoveElem(id string)
	// IDs lists the device ids currently owned.
	IDs() []string
}

// Splitter is implemented by controllers that decompose one physical device
// into several synthetic resources before diffing.
type Splitter interface {
	SplitDevice(dev *afero.Device) ([]*afero.Device, bool)
}

// claimable rejects inventory entries that are not controllable devices.
// Synthetic split resources carry no typeId and pass.
func claimable(dev *afero.Device) bool {
	return dev.TypeID == "" || dev.TypeID == afero.TypeMetadevice
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func errUnclaimed(kind, id string) error {
	return fmt.Errorf("%s controller does not track %q", kind, id)
}

// base carries the shared bookkeeping of every controller.
type base struct {
	mu     sync.RWMutex
	logger *slog.Logger
}

func newBase(logger *slog.Logger, component string) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{logger: logger.With("component", component)}
}
