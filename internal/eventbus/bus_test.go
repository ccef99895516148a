package eventbus

import (
	"testing"
)

func TestOnEmitOrder(t *testing.T) {
	bus := New()

	var order []int
	bus.On("tick", func(args ...any) { order = append(order, 1) })
	bus.On("tick", func(args ...any) { order = append(order, 2) })
	bus.On("tick", func(args ...any) { order = append(order, 3) })

	if !bus.Emit("tick") {
		t.Fatal("expected Emit to report existing handlers")
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("handlers ran out of registration order: %v", order)
	}
}

func TestEmitNoHandlers(t *testing.T) {
	bus := New()
	if bus.Emit("nothing") {
		t.Error("expected Emit to report no handlers")
	}
}

func TestEmitArgs(t *testing.T) {
	bus := New()

	var got []any
	bus.On("data", func(args ...any) { got = args })

	bus.Emit("data", "2025-01-02", 42)

	if len(got) != 2 || got[0] != "2025-01-02" || got[1] != 42 {
		t.Errorf("unexpected args: %v", got)
	}
}

func TestOnceFiresOnce(t *testing.T) {
	bus := New()

	count := 0
	bus.Once("open", func(args ...any) { count++ })

	bus.Emit("open")
	bus.Emit("open")

	if count != 1 {
		t.Errorf("once handler ran %d times, want 1", count)
	}
	if bus.ListenerCount("open") != 0 {
		t.Error("once handler still registered after firing")
	}
}

func TestOffRemovesSpecificHandler(t *testing.T) {
	bus := New()

	var aRan, bRan bool
	a := func(args ...any) { aRan = true }
	b := func(args ...any) { bRan = true }

	bus.On("close", a)
	bus.On("close", b)
	bus.Off("close", a)

	bus.Emit("close")

	if aRan {
		t.Error("removed handler still ran")
	}
	if !bRan {
		t.Error("remaining handler did not run")
	}
}

func TestRemoveAllListeners(t *testing.T) {
	bus := New()

	count := 0
	h := func(args ...any) { count++ }
	bus.On("a", h)
	bus.On("b", h)
	bus.On("c", h)

	bus.RemoveAllListeners("a")
	bus.Emit("a")
	bus.Emit("b")
	if count != 1 {
		t.Fatalf("expected only topic b to fire, got %d", count)
	}

	bus.RemoveAllListeners()
	bus.Emit("b")
	bus.Emit("c")
	if count != 1 {
		t.Errorf("handlers fired after RemoveAllListeners(): %d", count)
	}
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := New()

	ran := false
	bus.On("boom", func(args ...any) { panic("handler fault") })
	bus.On("boom", func(args ...any) { ran = true })

	bus.Emit("boom")

	if !ran {
		t.Error("handler after panicking handler did not run")
	}
}

func TestReentrantEmit(t *testing.T) {
	bus := New()

	var events []string
	bus.On("outer", func(args ...any) {
		events = append(events, "outer")
		bus.Emit("inner")
	})
	bus.On("inner", func(args ...any) {
		events = append(events, "inner")
	})

	bus.Emit("outer")

	if len(events) != 2 || events[0] != "outer" || events[1] != "inner" {
		t.Errorf("unexpected event order: %v", events)
	}
}

func TestOnceRegisteredDuringEmit(t *testing.T) {
	bus := New()

	count := 0
	bus.Once("seed", func(args ...any) {
		bus.Once("seed", func(args ...any) { count++ })
	})

	bus.Emit("seed")
	bus.Emit("seed")
	bus.Emit("seed")

	if count != 1 {
		t.Errorf("nested once handler ran %d times, want 1", count)
	}
}
