package controller

import (
	"testing"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

func lockDevice(id string, states ...afero.State) *afero.Device {
	return &afero.Device{
		ID:          id,
		TypeID:      afero.TypeMetadevice,
		DeviceClass: "door-lock",
		States:      states,
	}
}

func TestLockControllerTracksPosition(t *testing.T) {
	c := NewLockController(testLogger())
	if !c.Matches(lockDevice("front")) {
		t.Fatalf("door-lock should match the lock controller")
	}
	if err := c.InitializeElem(lockDevice("front",
		afero.State{FunctionClass: "available", Value: true},
		afero.State{FunctionClass: "lock-control", Value: "locked"},
	)); err != nil {
		t.Fatalf("InitializeElem returned error: %v", err)
	}

	item, ok := c.Get("front")
	if !ok || item.Position != model.LockPositionLocked {
		t.Fatalf("unexpected lock state %+v", item)
	}

	changed, err := c.UpdateElem(lockDevice("front",
		afero.State{FunctionClass: "lock-control", Value: "unlocking"},
	))
	if err != nil {
		t.Fatalf("UpdateElem returned error: %v", err)
	}
	if len(changed) != 1 || changed[0] != "position" {
		t.Fatalf("expected position change, got %v", changed)
	}
	item, _ = c.Get("front")
	if item.Position != model.LockPositionUnlocking {
		t.Fatalf("unexpected position %q", item.Position)
	}
}
