package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCanTransition_ForwardOnly(t *testing.T) {
	cases := []struct {
		from, to FlipState
		want     bool
	}{
		{FlipQueued, FlipControllerUpdated, true},
		{FlipControllerUpdated, FlipDisplayed, true},
		{FlipQueued, FlipError, true},
		{FlipControllerUpdated, FlipError, true},
		{FlipQueued, FlipDisplayed, false},
		{FlipQueued, FlipQueued, false},
		{FlipControllerUpdated, FlipQueued, false},
		{FlipDisplayed, FlipError, false},
		{FlipError, FlipQueued, false},
		{FlipDisplayed, FlipDisplayed, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestFlipState_JSONUsesNames(t *testing.T) {
	b, err := json.Marshal(FlipControllerUpdated)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"controller_updated"` {
		t.Fatalf("expected name, got %s", b)
	}

	var st FlipState
	if err := json.Unmarshal([]byte(`"displayed"`), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st != FlipDisplayed {
		t.Fatalf("expected displayed, got %s", st)
	}
	if err := json.Unmarshal([]byte(`"flipping"`), &st); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for unknown state, got %v", err)
	}
}

func TestPipeID_String(t *testing.T) {
	if PipeA.String() != "A" || PipeC.String() != "C" {
		t.Fatalf("unexpected pipe names %s %s", PipeA, PipeC)
	}
	if PipeID(7).String() != "pipe(7)" {
		t.Fatalf("unexpected name for out-of-range pipe: %s", PipeID(7))
	}
}

func TestBuffer_Validate(t *testing.T) {
	ok := Buffer{Handle: "fb0", Width: 1920, Height: 1080, ByteStride: 7680, Size: 7680 * 1080}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid buffer, got %v", err)
	}

	bad := []Buffer{
		{Width: 1, Height: 1},
		{Handle: "fb1"},
		{Handle: "fb2", Width: 4, Height: 4, ByteStride: 16, Size: 32},
		{Handle: "fb3", Width: 4, Height: 4, Source: "gem"},
		{Handle: "fb4", Width: 4, Height: 4, Contexts: make([]PlaneContext, MaxContextCount+1)},
	}
	for _, b := range bad {
		if err := b.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("expected ErrConfig for %+v, got %v", b, err)
		}
	}
}

func TestIsBackpressure(t *testing.T) {
	if !IsBackpressure(ErrPipeFull) || !IsBackpressure(ErrResourceExhausted) {
		t.Fatalf("expected backpressure errors")
	}
	if IsBackpressure(ErrInvalidHandle) || IsBackpressure(ErrInvalidTransition) {
		t.Fatalf("programming errors must not be backpressure")
	}
}
