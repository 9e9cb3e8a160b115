// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"
	"time"
)

func TestRepaintGateIdleIsNotDue(t *testing.T) {
	gate := NewRepaintGate(30)
	if gate.Due() {
		t.Error("gate due with no updates")
	}
}

func TestRepaintGateBatchThreshold(t *testing.T) {
	gate := NewRepaintGate(30)

	// Below the batch size and inside the frame budget: hold.
	gate.Note()
	if gate.Due() {
		t.Error("gate due after a single update inside the frame budget")
	}

	// Piling up to the batch size releases regardless of time.
	for i := 0; i < defaultBatchSize; i++ {
		gate.Note()
	}
	if !gate.Due() {
		t.Error("gate not due after a full batch")
	}
	if gate.Pending() != 0 {
		t.Errorf("pending = %d after release, want 0", gate.Pending())
	}
}

func TestRepaintGateTimeThreshold(t *testing.T) {
	gate := NewRepaintGate(120) // ~8ms budget keeps the test fast

	gate.Note()
	if gate.Due() {
		t.Error("gate due immediately")
	}

	time.Sleep(gate.Interval() + 5*time.Millisecond)
	if !gate.Due() {
		t.Error("gate not due after the frame budget elapsed")
	}
}

func TestRepaintGateForce(t *testing.T) {
	gate := NewRepaintGate(1) // 1s budget; only Force should release
	gate.Note()

	if !gate.Force() {
		t.Error("Force returned false with pending updates")
	}
	if gate.Force() {
		t.Error("Force returned true with nothing pending")
	}
}

func TestRepaintGateDefaultsOnBadFPS(t *testing.T) {
	for _, fps := range []int{0, -5, 1000} {
		gate := NewRepaintGate(fps)
		want := time.Second / time.Duration(defaultFPS)
		if gate.Interval() != want {
			t.Errorf("Interval(fps=%d) = %v, want %v", fps, gate.Interval(), want)
		}
	}
}

func TestRepaintGateConcurrentNotes(t *testing.T) {
	gate := NewRepaintGate(30)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				gate.Note()
			}
		}()
	}
	wg.Wait()

	if gate.Pending() != 800 {
		t.Errorf("pending = %d, want 800", gate.Pending())
	}
	if !gate.Due() {
		t.Error("gate not due after 800 updates")
	}
}
