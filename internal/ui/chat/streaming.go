// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the full-screen tutoring chat view.
//
// This file paces repaints during streaming. Fragments arrive far faster
// than a terminal can usefully repaint; the RepaintGate coalesces update
// notifications and lets a repaint through at a capped frame rate, which
// keeps the view smooth without burning CPU on thousand-FPS renders.
package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// REPAINT GATE
// =============================================================================

// RepaintGate coalesces transcript-update notifications into paced
// repaints. A repaint is due when either enough updates piled up or enough
// time passed since the last one.
//
// Notes come from the session's pipeline goroutine (via the program
// message loop), reads from the Bubble Tea update loop, so every operation
// takes the mutex.
type RepaintGate struct {
	mu          sync.Mutex
	pending     int
	lastRepaint time.Time

	batchSize   int
	minInterval time.Duration
}

const (
	defaultBatchSize = 15
	defaultFPS       = 30
)

// NewRepaintGate creates a gate allowing at most fps repaints per second.
// fps outside 1..120 falls back to the default.
func NewRepaintGate(fps int) *RepaintGate {
	if fps < 1 || fps > 120 {
		fps = defaultFPS
	}
	return &RepaintGate{
		batchSize:   defaultBatchSize,
		minInterval: time.Second / time.Duration(fps),
		lastRepaint: time.Now(),
	}
}

// Interval returns the pacing interval, for scheduling ticks.
func (g *RepaintGate) Interval() time.Duration {
	return g.minInterval
}

// Note records one transcript update.
func (g *RepaintGate) Note() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending++
}

// Due reports whether a repaint should happen now, and if so consumes the
// pending updates. Returns false while nothing changed or the frame budget
// is not yet spent.
func (g *RepaintGate) Due() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == 0 {
		return false
	}
	if g.pending < g.batchSize && time.Since(g.lastRepaint) < g.minInterval {
		return false
	}
	g.consumeLocked()
	return true
}

// Force consumes pending updates unconditionally. Used when a stream ends
// so the final state is never left unrendered.
func (g *RepaintGate) Force() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == 0 {
		return false
	}
	g.consumeLocked()
	return true
}

func (g *RepaintGate) consumeLocked() {
	g.pending = 0
	g.lastRepaint = time.Now()
}

// Pending reports the number of unconsumed updates.
func (g *RepaintGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// =============================================================================
// RENDER TICK
// =============================================================================

// renderTickMsg drives gate checks while a stream is active.
type renderTickMsg time.Time

// renderTick schedules the next repaint check.
func renderTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return renderTickMsg(t)
	})
}
