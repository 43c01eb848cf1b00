package kawase

import (
	"errors"
	"testing"
	"time"
)

func TestSchedulerGateCapacity(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	s := newFrameScheduler(device, queue, 3)
	defer s.clear()

	if got := s.inFlight(); got != 0 {
		t.Fatalf("inFlight = %d before any acquire, want 0", got)
	}

	for i := 1; i <= 3; i++ {
		s.acquire()
		if got := s.inFlight(); got != i {
			t.Errorf("inFlight = %d after %d acquires, want %d", got, i, i)
		}
	}

	// A fourth acquire must block until a unit is released.
	fourth := make(chan struct{})
	go func() {
		s.acquire()
		close(fourth)
	}()

	select {
	case <-fourth:
		t.Fatal("fourth acquire proceeded with all units outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	s.release()
	select {
	case <-fourth:
	case <-time.After(time.Second):
		t.Fatal("fourth acquire still blocked after release")
	}

	for i := 0; i < 3; i++ {
		s.release()
	}
}

func TestSchedulerDrainWaitsForInFlight(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	s := newFrameScheduler(device, queue, 3)
	defer s.clear()

	s.acquire()
	s.acquire()

	done := make(chan struct{})
	go func() {
		s.drain()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("drain returned with two frames in flight")
	case <-time.After(50 * time.Millisecond):
	}

	s.release()
	select {
	case <-done:
		t.Fatal("drain returned with one frame in flight")
	case <-time.After(50 * time.Millisecond):
	}

	s.release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain still blocked after the last release")
	}
	if got := s.inFlight(); got != 0 {
		t.Errorf("inFlight = %d after drain, want 0", got)
	}
}

func TestSchedulerRoundRobinSlots(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	s := newFrameScheduler(device, queue, 3)
	defer s.clear()

	if err := s.ensurePool(32, 32); err != nil {
		t.Fatalf("ensurePool: %v", err)
	}
	if len(s.slots) != 3 {
		t.Fatalf("slot count = %d, want 3", len(s.slots))
	}

	order := []int{0, 1, 2, 0, 1, 2, 0}
	for n, want := range order {
		slot := s.nextSlot()
		if slot.index != want {
			t.Errorf("nextSlot call %d: index = %d, want %d", n, slot.index, want)
		}
	}
}

func TestSchedulerEnsurePool(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	s := newFrameScheduler(device, queue, 3)
	defer s.clear()

	if err := s.ensurePool(64, 32); err != nil {
		t.Fatalf("ensurePool: %v", err)
	}
	first := s.slots[0].tex

	// Same dimensions: pool untouched.
	if err := s.ensurePool(64, 32); err != nil {
		t.Fatalf("repeat ensurePool: %v", err)
	}
	if s.slots[0].tex != first {
		t.Error("pool rebuilt for unchanged dimensions")
	}
	if len(s.slots[0].pixels) != 64*32*4 {
		t.Errorf("pixel buffer = %d bytes, want %d", len(s.slots[0].pixels), 64*32*4)
	}

	// Changed dimensions: full rebuild, gate intact afterwards.
	if err := s.ensurePool(128, 128); err != nil {
		t.Fatalf("resize ensurePool: %v", err)
	}
	if s.slots[0].tex == first {
		t.Error("pool kept old texture after resize")
	}
	if got := s.inFlight(); got != 0 {
		t.Errorf("inFlight = %d after rebuild, want 0", got)
	}

	if err := s.ensurePool(0, 128); !errors.Is(err, ErrResourceAllocation) {
		t.Errorf("zero-width ensurePool error = %v, want ErrResourceAllocation", err)
	}
}

func TestSchedulerClearRefillsGate(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	s := newFrameScheduler(device, queue, 3)
	if err := s.ensurePool(32, 32); err != nil {
		t.Fatalf("ensurePool: %v", err)
	}

	s.clear()
	if len(s.slots) != 0 {
		t.Errorf("slots after clear = %d, want 0", len(s.slots))
	}
	if got := s.inFlight(); got != 0 {
		t.Errorf("inFlight = %d after clear, want 0", got)
	}

	// The pool rebuilds lazily on next use.
	if err := s.ensurePool(32, 32); err != nil {
		t.Fatalf("ensurePool after clear: %v", err)
	}
	s.clear()
}
