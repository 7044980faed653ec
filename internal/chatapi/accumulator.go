// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"strings"
	"time"
)

// =============================================================================
// HANDLERS
// =============================================================================

// Handlers receives accumulator callbacks. Any field may be nil.
//
// Guarantees enforced by Accumulator.Consume:
//   - OnToken calls happen in stream order and stop after completion;
//   - OnComplete fires at most once per stream;
//   - OnError fires at most once per stream;
//   - OnComplete and OnError are mutually exclusive.
type Handlers struct {
	OnToken    func(fragment string)
	OnComplete func()
	OnError    func(err error)
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator folds a decoded event stream into message content.
//
// The final content is byte-identical to the concatenation of all token
// fragments in arrival order; consumers that coalesce for rendering must
// still see the same total content.
type Accumulator struct {
	content    strings.Builder
	startTime  time.Time
	firstToken time.Time
	tokenCount int
	model      string

	completed bool
	failed    bool
}

// NewAccumulator creates an accumulator. The start time anchors the
// time-to-first-token statistic.
func NewAccumulator() *Accumulator {
	return &Accumulator{startTime: time.Now()}
}

// Consume drains events until the stream terminates, invoking handlers
// as it goes.
//
// Termination:
//   - EventDone: OnComplete fires, remaining events (there should be
//     none) are not read, returns nil;
//   - EventError: OnError fires with a StreamError preserving the
//     partial content, returns that error;
//   - channel closed without done or error (natural EOF): neither
//     callback fires and nil is returned; the stream is left pending
//     and Completed()/Failed() both report false. Callers that need a
//     terminal outcome should wrap Consume with a timeout.
func (a *Accumulator) Consume(events <-chan StreamEvent, h Handlers) error {
	for ev := range events {
		switch ev.Kind {
		case EventToken:
			if a.completed || a.failed {
				// No tokens are accepted after a terminal event.
				continue
			}
			if a.firstToken.IsZero() {
				a.firstToken = time.Now()
			}
			a.content.WriteString(ev.Content)
			a.tokenCount++
			if h.OnToken != nil {
				h.OnToken(ev.Content)
			}

		case EventDone:
			if a.completed || a.failed {
				continue
			}
			a.completed = true
			if h.OnComplete != nil {
				h.OnComplete()
			}
			return nil

		case EventError:
			if a.completed || a.failed {
				continue
			}
			a.failed = true
			err := &StreamError{Partial: a.content.String(), Err: ev.Err}
			if h.OnError != nil {
				h.OnError(err)
			}
			return err
		}
	}

	// Natural EOF without a done event: left pending.
	return nil
}

// Content returns the accumulated content so far.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Completed reports whether the stream finished gracefully.
func (a *Accumulator) Completed() bool {
	return a.completed
}

// Failed reports whether the stream terminated with an error.
func (a *Accumulator) Failed() bool {
	return a.failed
}

// TokenCount returns the number of token fragments applied.
func (a *Accumulator) TokenCount() int {
	return a.tokenCount
}

// SetModel records which model produced the stream, for stats.
func (a *Accumulator) SetModel(model string) {
	a.model = model
}

// Stats returns timing statistics for the consumed stream.
func (a *Accumulator) Stats() StreamStats {
	var ttft time.Duration
	if !a.firstToken.IsZero() {
		ttft = a.firstToken.Sub(a.startTime)
	}
	return StreamStats{
		FirstTokenTime: ttft,
		TotalTime:      time.Since(a.startTime),
		TokenCount:     a.tokenCount,
		Model:          a.model,
	}
}
