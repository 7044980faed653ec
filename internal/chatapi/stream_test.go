// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// chunkedReader delivers the underlying data in fixed-size chunks to
// exercise partial-line buffering across chunk boundaries.
type chunkedReader struct {
	data  []byte
	pos   int
	chunk int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

// failingReader returns its payload, then a read error.
type failingReader struct {
	data []byte
	pos  int
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, r.err
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// collectEvents drains a raw stream through pumpEvents.
func collectEvents(t *testing.T, r io.Reader) []StreamEvent {
	t.Helper()
	out := make(chan StreamEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		pumpEvents(r, out)
	}()
	var events []StreamEvent
	for ev := range out {
		events = append(events, ev)
	}
	<-done
	return events
}

// =============================================================================
// EVENT READER TESTS
// =============================================================================

func TestEventReader_TokensAndDone(t *testing.T) {
	stream := "data: {\"type\":\"token\",\"content\":\"Hi\"}\n" +
		"data: {\"type\":\"token\",\"content\":\" there\"}\n" +
		"data: {\"type\":\"done\"}\n"

	reader := NewEventReader(strings.NewReader(stream))

	ev, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Type != "token" || ev.Content != "Hi" {
		t.Errorf("event = %+v, want token %q", ev, "Hi")
	}

	ev, err = reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Content != " there" {
		t.Errorf("Content = %q, want %q", ev.Content, " there")
	}

	ev, err = reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Type != "done" {
		t.Errorf("Type = %q, want done", ev.Type)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after stream end, got %v", err)
	}
}

func TestEventReader_IgnoresNonDataLines(t *testing.T) {
	stream := ": keep-alive\n" +
		"event: message\n" +
		"\n" +
		"data: {\"type\":\"token\",\"content\":\"A\"}\n"

	reader := NewEventReader(strings.NewReader(stream))
	ev, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Content != "A" {
		t.Errorf("Content = %q, want %q", ev.Content, "A")
	}
}

func TestEventReader_SkipsMalformedPayload(t *testing.T) {
	stream := "data: {\"type\":\"token\",\"content\":\"A\"}\n" +
		"data: not-json\n" +
		"data: {\"type\":\"token\",\"content\":\"B\"}\n"

	reader := NewEventReader(strings.NewReader(stream))

	ev, _ := reader.Next()
	if ev.Content != "A" {
		t.Errorf("first Content = %q, want A", ev.Content)
	}
	// The malformed line must be skipped, not returned and not fatal.
	ev, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed after malformed line: %v", err)
	}
	if ev.Content != "B" {
		t.Errorf("second Content = %q, want B", ev.Content)
	}
}

func TestEventReader_DiscardsTrailingPartialLine(t *testing.T) {
	// The final line has no newline and is not a complete event.
	stream := "data: {\"type\":\"token\",\"content\":\"A\"}\n" +
		"data: {\"type\":\"tok"

	reader := NewEventReader(strings.NewReader(stream))

	ev, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Content != "A" {
		t.Errorf("Content = %q, want A", ev.Content)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("truncated tail should yield io.EOF, got %v", err)
	}
}

func TestEventReader_DropsOversizedLine(t *testing.T) {
	// An oversized line must be consumed and skipped, not returned and
	// not fatal to the stream.
	huge := "data: {\"type\":\"token\",\"content\":\"" +
		strings.Repeat("x", MaxLineSize+1024) + "\"}\n"
	stream := huge + "data: {\"type\":\"token\",\"content\":\"after\"}\n"

	reader := NewEventReader(strings.NewReader(stream))

	ev, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed after oversized line: %v", err)
	}
	if ev.Content != "after" {
		t.Errorf("Content = %q, want the event after the oversized line", ev.Content)
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF at stream end, got %v", err)
	}
}

// Re-chunking the same byte stream at arbitrary boundaries must not
// change the decoded result.
func TestEventReader_RechunkingInvariance(t *testing.T) {
	stream := "data: {\"type\":\"token\",\"content\":\"alpha \"}\n" +
		"data: {\"type\":\"token\",\"content\":\"beta \"}\n" +
		"data: {\"type\":\"token\",\"content\":\"gamma\"}\n" +
		"data: {\"type\":\"done\"}\n"

	for _, chunk := range []int{1, 2, 3, 5, 7, 16, 1024} {
		events := collectEvents(t, &chunkedReader{data: []byte(stream), chunk: chunk})

		var content strings.Builder
		for _, ev := range events {
			if ev.Kind == EventToken {
				content.WriteString(ev.Content)
			}
		}
		if got := content.String(); got != "alpha beta gamma" {
			t.Errorf("chunk=%d: content = %q, want %q", chunk, got, "alpha beta gamma")
		}
		if last := events[len(events)-1]; last.Kind != EventDone {
			t.Errorf("chunk=%d: last event = %v, want done", chunk, last.Kind)
		}
	}
}

// =============================================================================
// EVENT PUMP TESTS
// =============================================================================

func TestPumpEvents_StopsAfterDone(t *testing.T) {
	// Events after done must not be emitted.
	stream := "data: {\"type\":\"done\"}\n" +
		"data: {\"type\":\"token\",\"content\":\"late\"}\n"

	events := collectEvents(t, strings.NewReader(stream))

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventDone {
		t.Errorf("event = %v, want done", events[0].Kind)
	}
}

func TestPumpEvents_ReadErrorEmitsErrorEvent(t *testing.T) {
	readErr := errors.New("connection reset")
	r := &failingReader{
		data: []byte("data: {\"type\":\"token\",\"content\":\"Par\"}\ndata: {\"type\":\"token\",\"content\":\"tial\"}\n"),
		err:  readErr,
	}

	events := collectEvents(t, r)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Content != "Par" || events[1].Content != "tial" {
		t.Errorf("tokens = %q,%q, want Par,tial", events[0].Content, events[1].Content)
	}
	last := events[2]
	if last.Kind != EventError {
		t.Fatalf("last event = %v, want error", last.Kind)
	}
	if !errors.Is(last.Err, readErr) {
		t.Errorf("error = %v, want wrapped %v", last.Err, readErr)
	}
}

func TestPumpEvents_NaturalEOFEmitsNothingTerminal(t *testing.T) {
	stream := "data: {\"type\":\"token\",\"content\":\"A\"}\n"

	events := collectEvents(t, strings.NewReader(stream))

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventToken {
		t.Errorf("event = %v, want token", events[0].Kind)
	}
}
