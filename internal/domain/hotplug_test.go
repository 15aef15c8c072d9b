package domain

import (
	"encoding/json"
	"testing"
)

func TestAction_Text(t *testing.T) {
	tests := []struct {
		action Action
		name   string
	}{
		{NoOp, "noop"},
		{BringUp, "bring_up"},
		{TakeDown, "take_down"},
	}
	for _, tt := range tests {
		if got := tt.action.String(); got != tt.name {
			t.Errorf("%d.String() = %q, want %q", tt.action, got, tt.name)
		}
		var a Action
		if err := a.UnmarshalText([]byte(tt.name)); err != nil || a != tt.action {
			t.Errorf("UnmarshalText(%q) = %v, %v", tt.name, a, err)
		}
	}

	var a Action = TakeDown
	a.UnmarshalText([]byte("sideways"))
	if a != NoOp {
		t.Errorf("unknown action decoded to %v, want noop", a)
	}
	if Action(9).String() != "unknown" {
		t.Errorf("Action(9).String() = %q", Action(9).String())
	}
}

func TestState_JSON(t *testing.T) {
	data, err := json.Marshal(Status{State: Running})
	if err != nil {
		t.Fatal(err)
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	if s.State != Running {
		t.Errorf("State = %v, want running", s.State)
	}
}

func TestHotplugEvent_Succeeded(t *testing.T) {
	if !(HotplugEvent{}).Succeeded() {
		t.Error("event without error should succeed")
	}
	if (HotplugEvent{Error: "EBUSY"}).Succeeded() {
		t.Error("event with error should fail")
	}
}

func TestLoadThreads(t *testing.T) {
	if got := LoadThreads(FixedOne); got != 1 {
		t.Errorf("LoadThreads(FixedOne) = %v, want 1", got)
	}
	if got := LoadThreads(5 * FixedOne / 2); got != 2.5 {
		t.Errorf("LoadThreads(2.5) = %v, want 2.5", got)
	}
	if ThresholdScale != 8 {
		t.Errorf("ThresholdScale = %d, want 8", ThresholdScale)
	}
}

func TestErrCoreNotHotpluggable_CoversBothDirections(t *testing.T) {
	if got := ErrCoreNotHotpluggable.Error(); got != "core has no online control" {
		t.Errorf("ErrCoreNotHotpluggable = %q", got)
	}
}
