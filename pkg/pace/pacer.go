// ABOUTME: Generic real-time pacing engine for timestamped item sequences
// ABOUTME: Replays items with wall-clock delays, supporting abort and disable
// Package pace provides a generic engine that replays a sequence of delayed
// items at approximately real-time speed.
//
// The pcmcast sender uses it to convert "as fast as possible" chunk
// production into delivery at roughly the rate the audio represents. Pacing
// can be disabled for tests or bulk transfer, and an in-flight run can be
// aborted at the next pacing boundary.
package pace

import (
	"errors"
	"sync"
	"time"
)

// ErrAborted is returned by Pace and PaceChan when Abort interrupted the run
// before the last item. No completion is signaled for an aborted run.
var ErrAborted = errors.New("pacing aborted")

// Item is one element of a paced sequence. Delay is the wall-clock time to
// wait after emitting the item before emitting the next one; it is skipped
// for Final items and when pacing is disabled.
type Item[T any] struct {
	Value T
	Delay time.Duration
	Final bool
}

// Pacer replays item sequences in order with optional real-time delays.
// A Pacer runs one sequence at a time and may be reused across runs.
type Pacer[T any] struct {
	mu      sync.Mutex
	enabled bool
	abortCh chan struct{}
	aborted bool
}

// NewPacer creates a pacer. With enabled=false items replay back-to-back.
func NewPacer[T any](enabled bool) *Pacer[T] {
	return &Pacer[T]{enabled: enabled}
}

// SetEnabled toggles whether waits actually occur.
func (p *Pacer[T]) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// Enabled reports whether real-time pacing is active.
func (p *Pacer[T]) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Abort interrupts the in-flight run at the next pacing boundary. The item
// currently being emitted still completes; no further items are emitted once
// the abort is observed. Safe to call with no run in flight.
func (p *Pacer[T]) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.abortCh != nil && !p.aborted {
		p.aborted = true
		close(p.abortCh)
	}
}

// Pace emits each item in order via emit, waiting each item's delay before
// the next. Returns nil after the last item, ErrAborted if aborted, or the
// emit error that stopped the run.
func (p *Pacer[T]) Pace(items []Item[T], emit func(Item[T]) error) error {
	abort := p.beginRun()
	defer p.endRun()

	for _, item := range items {
		if err := p.emitOne(abort, item, emit); err != nil {
			return err
		}
	}
	return nil
}

// PaceChan is the generator-fed variant: items are consumed lazily from a
// channel, with identical pacing and abort semantics. The run completes when
// the channel is closed.
func (p *Pacer[T]) PaceChan(items <-chan Item[T], emit func(Item[T]) error) error {
	abort := p.beginRun()
	defer p.endRun()

	for {
		select {
		case <-abort:
			return ErrAborted
		case item, ok := <-items:
			if !ok {
				return nil
			}
			if err := p.emitOne(abort, item, emit); err != nil {
				return err
			}
		}
	}
}

// emitOne emits a single item and performs its trailing wait.
func (p *Pacer[T]) emitOne(abort <-chan struct{}, item Item[T], emit func(Item[T]) error) error {
	select {
	case <-abort:
		return ErrAborted
	default:
	}

	if err := emit(item); err != nil {
		return err
	}

	if item.Final || item.Delay <= 0 || !p.Enabled() {
		return nil
	}

	timer := time.NewTimer(item.Delay)
	defer timer.Stop()

	select {
	case <-abort:
		return ErrAborted
	case <-timer.C:
		return nil
	}
}

func (p *Pacer[T]) beginRun() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.abortCh = make(chan struct{})
	p.aborted = false
	return p.abortCh
}

func (p *Pacer[T]) endRun() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.abortCh = nil
	p.aborted = false
}
